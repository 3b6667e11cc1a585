package auth

import (
	"strconv"

	"github.com/pkg/errors"
)

func jwtSubject(userID int32) string {
	return strconv.FormatInt(int64(userID), 10)
}

func parseJWTSubject(subject string) (int32, error) {
	id, err := strconv.ParseInt(subject, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid token subject %q", subject)
	}
	if id <= 0 {
		return 0, errors.Errorf("invalid user id in token subject: %d", id)
	}
	return int32(id), nil
}
