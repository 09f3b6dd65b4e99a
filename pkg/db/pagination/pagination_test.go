package pagination

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type row struct {
	ID string `gorm:"primaryKey"`
}

func TestCursorRoundTrip(t *testing.T) {
	s, err := EncodeCursor(Cursor{ID: "p_42"})
	require.NoError(t, err)

	c, err := DecodeCursor(s)
	require.NoError(t, err)
	require.Equal(t, "p_42", c.ID)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestScopeAndPage(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:pagination?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	require.NoError(t, db.AutoMigrate(&row{}))
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Create(&row{ID: fmt.Sprintf("r_%d", i)}).Error)
	}

	p := Pagination{Limit: 2}
	var seen []string
	for {
		scope, err := Scope(p)
		require.NoError(t, err)

		var rows []*row
		require.NoError(t, db.Scopes(scope).Find(&rows).Error)

		page, info, err := Page(rows, p, func(r *row) string { return r.ID })
		require.NoError(t, err)
		for _, r := range page {
			seen = append(seen, r.ID)
		}
		if !info.HasMore {
			break
		}
		p.Cursor = info.NextCursor
	}
	require.Equal(t, []string{"r_0", "r_1", "r_2", "r_3", "r_4"}, seen)

	_, err = Scope(Pagination{Cursor: "!!"})
	require.Error(t, err)
}

func TestLimitClamp(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.limit())
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.limit())
	require.Equal(t, 7, Pagination{Limit: 7}.limit())
}
