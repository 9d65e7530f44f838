package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/internal/model"
	"github.com/tovian/tovian/pkg/core"
)

func memoryDSN(t *testing.T) string {
	return "file:" + t.Name() + "?mode=memory&cache=shared"
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Username: "tovian", Password: "secret", Database: "annotations"}
	assert.Equal(t, "host=db port=5432 user=tovian password=secret dbname=annotations sslmode=disable", cfg.DSN())
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("a.db"))
	assert.Equal(t, "file:x?mode=memory&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("file:x?mode=memory"))
}

func TestManager_Setup(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.Error(t, m.Setup(), "setup without a connection")

	require.NoError(t, m.ConnectSqlite(memoryDSN(t)))
	defer m.Close()

	require.NoError(t, m.Setup())
	require.NoError(t, m.Setup(), "setup is idempotent")

	var attrs []model.AnnotationAttribute
	require.NoError(t, m.DB.Order("id").Find(&attrs).Error)
	require.Len(t, attrs, len(core.DefaultAttributes()))
	assert.Equal(t, "position_rectangle", attrs[0].Name)

	var shot model.AnnotationAttribute
	require.NoError(t, m.DB.First(&shot, core.AttrShotChange).Error)
	assert.Equal(t, "cut|fade|dissolve|other|???", shot.AllowedValues)
	assert.True(t, shot.IsGlobal)
}

func TestSetup_KeepsEditedAttributes(t *testing.T) {
	db, err := GetSqliteDB(memoryDSN(t))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	require.NoError(t, db.Model(&model.AnnotationAttribute{}).
		Where("id = ?", core.AttrComment).
		Update("description", "free text").Error)
	require.NoError(t, Migrate(db))

	var comment model.AnnotationAttribute
	require.NoError(t, db.First(&comment, core.AttrComment).Error)
	assert.Equal(t, "free text", comment.Description)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB(memoryDSN(t))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	assert.Error(t, DumpMemoryDBToDisk(db, ""))

	path := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, DumpMemoryDBToDisk(db, path))

	disk, err := GetSqliteDB(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, disk.Model(&model.AnnotationAttribute{}).Count(&count).Error)
	assert.Equal(t, int64(len(core.DefaultAttributes())), count)
	sqlDB, err := disk.DB()
	require.NoError(t, err)
	sqlDB.Close()
}
