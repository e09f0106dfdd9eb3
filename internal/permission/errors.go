package permission

import (
	"fmt"

	"github.com/pkg/errors"
)

// StoreError 协作存储故障。调用方据此区分"无权限"与"结果未知"。
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("rbac store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Cause() error { return e.Err }

// storeErr 包装存储错误，已包装过的直接透传
func storeErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if IsStoreError(err) {
		return err
	}
	return &StoreError{Op: fmt.Sprintf(format, args...), Err: errors.WithStack(err)}
}

// IsStoreError 判断错误链中是否存在存储故障
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
