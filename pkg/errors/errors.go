package errors

import "errors"

// ErrBatchPartial 分块批量写入中途失败：此前已提交的批次不会回滚
var ErrBatchPartial = errors.New("批量写入部分失败，已提交的批次不会回滚")
