package partition

import "errors"

var (
	ErrTableNotFound         = errors.New("table does not exist")
	ErrNoPartitions          = errors.New("no partitions found")
	ErrPartitionGap          = errors.New("partition indices are not contiguous")
	ErrInvalidPartitionCount = errors.New("partition count must be at least 1")
)
