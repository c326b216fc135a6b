package adminapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/webserver"
	"gorm.io/gorm/schema"
)

// TableInfo row count of one managed table
type TableInfo struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// JobInfo a scheduled background job
type JobInfo struct {
	ID   int       `json:"id"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

func registerSystemRoutes() {
	webserver.ApiGET("/system/tables", ListTables)
	webserver.ApiGET("/system/jobs", ListJobs)
}

// ListTables counts the rows of every table the service manages
func ListTables(c echo.Context) error {
	db := GetDB(c)
	tables := make([]TableInfo, 0, len(domain.Tables))
	for _, model := range domain.Tables {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			return databaseError(c, "Failed to count rows", err)
		}
		name := ""
		if t, ok := model.(schema.Tabler); ok {
			name = t.TableName()
		}
		tables = append(tables, TableInfo{Name: name, RowCount: count})
	}
	return ok(c, tables)
}

// ListJobs lists the cron entries, empty when no job is scheduled
func ListJobs(c echo.Context) error {
	jobs := []JobInfo{}
	if sched := GetAppContext(c).Scheduler(); sched != nil {
		for _, entry := range sched.Entries() {
			jobs = append(jobs, JobInfo{ID: int(entry.ID), Next: entry.Next, Prev: entry.Prev})
		}
	}
	return ok(c, jobs)
}
