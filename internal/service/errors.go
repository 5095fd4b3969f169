package service

import (
	"errors"
	"fmt"

	"reveal-service/internal/repositories"
)

// Error kinds returned by the accessors. Test with errors.Is.
var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAMember       = errors.New("not a member of this group")
	ErrPrivateGroup     = errors.New("group is private")
	ErrOwnerCannotLeave = errors.New("the owner cannot leave the group")
	ErrUploadFailed     = errors.New("upload failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectivityLost = repositories.ErrConnectivityLost
)

func fail(msg string, kind error) error {
	return fmt.Errorf("%s: %w", msg, kind)
}

// storeFailure wraps a repository error, folding the not-found sentinels into ErrNotFound.
func storeFailure(msg string, err error) error {
	if errors.Is(err, repositories.ErrGroupNotFound) || errors.Is(err, repositories.ErrMessageNotFound) {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
