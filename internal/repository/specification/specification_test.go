package specification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type row struct {
	ThreadId string
}

func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost", PreferSimpleProtocol: true}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		t.Skipf("postgres dialector unavailable: %v", err)
	}
	return db
}

func TestSpecifications_SQL(t *testing.T) {
	db := dryRun(t)

	tests := []struct {
		name  string
		specs []Specification
		want  []string
	}{
		{"thread", []Specification{ByThreadID{ThreadID: "t1"}}, []string{"thread_id = $1"}},
		{"deleted newest first", []Specification{OnlyDeleted{}, OrderBy{Field: "deleted_at", Desc: true}}, []string{"deleted_at IS NOT NULL", `ORDER BY "deleted_at" DESC`}},
		{"paged", []Specification{Pagination{Limit: 10, Offset: 20}}, []string{"LIMIT", "OFFSET"}},
		{"nil spec skipped", []Specification{nil, ByThreadID{ThreadID: "t1"}}, []string{"thread_id = $1"}},
		{"document", []Specification{ByDocumentID{DocumentID: "d"}}, []string{"document_id = $1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := Apply(db.Table("conversations"), tt.specs...).Find(&[]row{}).Statement
			for _, fragment := range tt.want {
				assert.Contains(t, stmt.SQL.String(), fragment)
			}
		})
	}
}

func TestPagination_ZeroIsUnbounded(t *testing.T) {
	db := dryRun(t)
	stmt := Apply(db.Table("conversations"), Pagination{}).Find(&[]row{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "LIMIT")
	assert.NotContains(t, stmt.SQL.String(), "OFFSET")
}
