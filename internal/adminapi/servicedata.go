package adminapi

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/webserver"
	"github.com/talkincode/resilienced/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxImportBytes = 32 << 20

type serviceDataPayload struct {
	Service                int64   `json:"service,string" validate:"required"`
	Time                   float64 `json:"time" validate:"min=0"`
	CallID                 int64   `json:"callId"`
	SuccessfulTransactions int64   `json:"successfulTransactions" validate:"min=0"`
	FailedTransactions     int64   `json:"failedTransactions" validate:"min=0"`
	DroppedTransactions    int64   `json:"droppedTransactions" validate:"min=0"`
	AvgResponseTime        float64 `json:"avgResponseTime" validate:"min=0"`
}

// serviceDataRecord one CSV line of an import
type serviceDataRecord struct {
	Time                   float64 `csv:"time"`
	CallID                 int64   `csv:"callId"`
	SuccessfulTransactions int64   `csv:"successfulTransactions"`
	FailedTransactions     int64   `csv:"failedTransactions"`
	DroppedTransactions    int64   `csv:"droppedTransactions"`
	AvgResponseTime        float64 `csv:"avgResponseTime"`
}

// CallSummary aggregate of one observation batch
type CallSummary struct {
	*resilience.Observation
	Transactions    int64   `json:"transactions"`
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	MaxResponseTime float64 `json:"max_response_time"`
	P95ResponseTime float64 `json:"p95_response_time"`
}

// registerServiceDataRoutes registers observation routes
func registerServiceDataRoutes() {
	webserver.ApiGET("/servicedata", ListServiceData)
	webserver.ApiGET("/servicedata/summary", SummaryServiceData)
	webserver.ApiPOST("/servicedata", CreateServiceData)
	webserver.ApiPOST("/servicedata/import", ImportServiceData)
	webserver.ApiGET("/servicedata/export", ExportServiceData)
}

// ListServiceData lists observations ordered by time, filtered by ?service=
// and ?callid=
func ListServiceData(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db, err := serviceDataQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return databaseError(c, "Failed to query service data", err)
	}
	var rows []domain.ServiceData
	if err := db.Order("time ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return databaseError(c, "Failed to query service data", err)
	}
	return paged(c, rows, total, page, pageSize)
}

func serviceDataQuery(c echo.Context) (*gorm.DB, error) {
	db := GetDB(c).Model(&domain.ServiceData{})
	service, has, err := parseIDQuery(c, "service")
	if err != nil {
		return nil, err
	}
	if has {
		db = db.Where("service_id = ?", service)
	}
	callID, has, err := parseIDQuery(c, "callid")
	if err != nil {
		return nil, err
	}
	if has {
		db = db.Where("call_id = ?", callID)
	}
	return db, nil
}

// CreateServiceData appends one observation
func CreateServiceData(c echo.Context) error {
	var payload serviceDataPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse service data", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if !serviceExists(c, payload.Service) {
		return fail(c, http.StatusNotFound, "SERVICE_NOT_FOUND", "Service not found", nil)
	}

	row := domain.ServiceData{
		ID:                     common.UUIDint64(),
		ServiceID:              payload.Service,
		Time:                   payload.Time,
		CallID:                 payload.CallID,
		SuccessfulTransactions: payload.SuccessfulTransactions,
		FailedTransactions:     payload.FailedTransactions,
		DroppedTransactions:    payload.DroppedTransactions,
		AvgResponseTime:        payload.AvgResponseTime,
	}
	if err := GetDB(c).Create(&row).Error; err != nil {
		return databaseError(c, "Failed to store service data", err)
	}
	return created(c, row)
}

// ImportServiceData appends the rows of a CSV upload (multipart "file" or
// text/csv body) to the service given by ?service=
func ImportServiceData(c echo.Context) error {
	service, has, err := parseIDQuery(c, "service")
	if err != nil || !has {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Query parameter service is required", nil)
	}
	if !serviceExists(c, service) {
		return fail(c, http.StatusNotFound, "SERVICE_NOT_FOUND", "Service not found", nil)
	}

	in, closeFn, err := importReader(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	}
	defer closeFn()

	var records []*serviceDataRecord
	if err := gocsv.Unmarshal(io.LimitReader(in, maxImportBytes), &records); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_CSV", "Unable to parse CSV", err.Error())
	}
	if len(records) == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_CSV", "CSV contains no rows", nil)
	}

	rows := make([]*domain.ServiceData, 0, len(records))
	for i, r := range records {
		if r.Time < 0 || r.SuccessfulTransactions < 0 || r.FailedTransactions < 0 || r.DroppedTransactions < 0 || r.AvgResponseTime < 0 {
			return fail(c, http.StatusBadRequest, "INVALID_MEASUREMENT", fmt.Sprintf("Negative value on CSV row %d", i+1), nil)
		}
		rows = append(rows, &domain.ServiceData{
			ID:                     common.UUIDint64(),
			ServiceID:              service,
			Time:                   r.Time,
			CallID:                 r.CallID,
			SuccessfulTransactions: r.SuccessfulTransactions,
			FailedTransactions:     r.FailedTransactions,
			DroppedTransactions:    r.DroppedTransactions,
			AvgResponseTime:        r.AvgResponseTime,
		})
	}

	if err := GetDB(c).CreateInBatches(rows, 500).Error; err != nil {
		return databaseError(c, "Failed to store service data", err)
	}

	zap.L().Info("service data imported",
		zap.String("namespace", "adminapi"),
		zap.Int64("service", service),
		zap.Int("rows", len(rows)))
	return created(c, map[string]interface{}{"service": fmt.Sprint(service), "imported": len(rows)})
}

func importReader(c echo.Context) (io.Reader, func(), error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, nil, errors.New("multipart field file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, errors.Wrap(err, "open upload")
		}
		return f, func() { _ = f.Close() }, nil
	}
	return c.Request().Body, func() {}, nil
}

var exportColumns = []string{"time", "callId", "successfulTransactions", "failedTransactions", "droppedTransactions", "avgResponseTime"}

// ExportServiceData writes the observations selected like ListServiceData as
// CSV, or as a spreadsheet with ?format=xlsx
func ExportServiceData(c echo.Context) error {
	db, err := serviceDataQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	}
	var rows []*domain.ServiceData
	if err := db.Order("call_id ASC, time ASC").Find(&rows).Error; err != nil {
		return databaseError(c, "Failed to query service data", err)
	}
	records := make([]*serviceDataRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &serviceDataRecord{
			Time:                   row.Time,
			CallID:                 row.CallID,
			SuccessfulTransactions: row.SuccessfulTransactions,
			FailedTransactions:     row.FailedTransactions,
			DroppedTransactions:    row.DroppedTransactions,
			AvgResponseTime:        row.AvgResponseTime,
		})
	}

	switch strings.ToLower(c.QueryParam("format")) {
	case "", "csv":
		data, err := gocsv.MarshalBytes(records)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Unable to write CSV", err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="servicedata.csv"`)
		return c.Blob(http.StatusOK, "text/csv", data)
	case "xlsx":
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="servicedata.xlsx"`)
		c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Response().WriteHeader(http.StatusOK)
		return writeXlsx(c.Response(), records)
	default:
		return fail(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be csv or xlsx", nil)
	}
}

func writeXlsx(w io.Writer, records []*serviceDataRecord) error {
	const sheet = "Sheet1"
	xlsx := excelize.NewFile()
	for i, name := range exportColumns {
		xlsx.SetCellValue(sheet, fmt.Sprintf("%c1", 'A'+i), name)
	}
	for i, r := range records {
		line := i + 2
		values := []interface{}{r.Time, r.CallID, r.SuccessfulTransactions, r.FailedTransactions, r.DroppedTransactions, r.AvgResponseTime}
		for j, v := range values {
			xlsx.SetCellValue(sheet, fmt.Sprintf("%c%d", 'A'+j, line), v)
		}
	}
	return xlsx.Write(w)
}

// SummaryServiceData summarizes every batch of ?service=, optionally only
// ?callid=
func SummaryServiceData(c echo.Context) error {
	if _, has, _ := parseIDQuery(c, "service"); !has {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Query parameter service is required", nil)
	}
	db, err := serviceDataQuery(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", err.Error(), nil)
	}
	var rows []*domain.ServiceData
	if err := db.Order("time ASC").Find(&rows).Error; err != nil {
		return databaseError(c, "Failed to query service data", err)
	}

	summaries, err := summarize(rows)
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, summaries)
}

func summarize(rows []*domain.ServiceData) ([]CallSummary, error) {
	batches := make(map[int64][]*domain.ServiceData)
	for _, row := range rows {
		batches[row.CallID] = append(batches[row.CallID], row)
	}
	calls := make([]int64, 0, len(batches))
	for id := range batches {
		calls = append(calls, id)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i] < calls[j] })

	summaries := make([]CallSummary, 0, len(calls))
	for _, id := range calls {
		batch := batches[id]
		obs, err := resilience.AnalyzeObservations(batch)
		if err != nil {
			return nil, err
		}
		s := CallSummary{Observation: obs, Start: batch[0].Time, End: batch[0].Time}
		responseTimes := make(stats.Float64Data, 0, len(batch))
		for _, row := range batch {
			s.Transactions += row.Total()
			if row.Time < s.Start {
				s.Start = row.Time
			}
			if row.Time > s.End {
				s.End = row.Time
			}
			responseTimes = append(responseTimes, row.AvgResponseTime)
		}
		s.MaxResponseTime, _ = responseTimes.Max()
		s.P95ResponseTime, _ = responseTimes.Percentile(95)
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func serviceExists(c echo.Context, id int64) bool {
	var count int64
	GetDB(c).Model(&domain.Service{}).Where("id = ?", id).Count(&count)
	return count > 0
}
