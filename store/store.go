// Package store 定义样本、布局与软删除记录的持久化接口。
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ByLCY/sampletag/layout"
	"github.com/ByLCY/sampletag/sample"
)

var (
	// ErrNotFound 表示记录不存在。
	ErrNotFound = errors.New("store: not found")
	// ErrConflict 表示主键已存在（例如同一内容键的样本已入库）。
	ErrConflict = errors.New("store: conflict")
)

// SampleRecord 是一条样本版本。更新样本会写入新记录并保留 AuditID，
// 同一 AuditID 下按 AuditNumber 区分版本。
type SampleRecord struct {
	Key         string
	AuditID     string
	AuditNumber int64
	Team        string
	Sample      sample.Sample
	CreatedAt   time.Time
}

// LayoutRecord 是团队保存的一份标签布局，ID 由存储分配。
type LayoutRecord struct {
	ID         int64
	Team       string
	Descriptor *layout.Descriptor
	CreatedAt  time.Time
}

// DeletedRecord 标记一个被软删除的样本，样本本身仍然保留。
type DeletedRecord struct {
	Key       string
	Team      string
	Reason    string
	DeletedAt time.Time
}

type SampleStore interface {
	// InsertSample 写入一条样本记录，内容键重复时返回 ErrConflict。
	InsertSample(ctx context.Context, rec SampleRecord) error
	GetSample(ctx context.Context, key string) (SampleRecord, error)
	// ListSamples 按 AuditNumber 升序返回团队的全部样本；team 为空时返回所有团队。
	ListSamples(ctx context.Context, team string) ([]SampleRecord, error)
}

type LayoutStore interface {
	InsertLayout(ctx context.Context, rec LayoutRecord) (LayoutRecord, error)
	// LatestLayout 返回团队最近保存的布局，没有时返回 ErrNotFound。
	LatestLayout(ctx context.Context, team string) (LayoutRecord, error)
}

type DeletedStore interface {
	// InsertDeleted 记录软删除，同一内容键重复删除时返回 ErrConflict。
	InsertDeleted(ctx context.Context, rec DeletedRecord) error
	ListDeleted(ctx context.Context, team string) ([]DeletedRecord, error)
	// ListDeletedSamples 返回团队已软删除的样本记录。
	ListDeletedSamples(ctx context.Context, team string) ([]SampleRecord, error)
}

// Store 聚合全部持久化能力。
type Store interface {
	SampleStore
	LayoutStore
	DeletedStore
	Close() error
}
