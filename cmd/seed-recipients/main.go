// Command seed-recipients bulk-loads recipient profiles from a CSV export
// into the local recipient database. Reruns are safe: rows upsert by contact
// ID, and an interrupted load resumes from the progress file.
//
// Usage:
//
//	go run ./cmd/seed-recipients \
//	  -csv exports/registrations.csv \
//	  -db data/recipients.db
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/heat-advisory-service/internal/adapter/sqlitestore"
	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

const progressInterval = 500

func main() {
	csvPath := flag.String("csv", "", "path to the recipient CSV export")
	dbPath := flag.String("db", "data/recipients.db", "path to the recipient database")
	table := flag.String("table", "recipients", "recipient table name")
	progress := flag.String("progress", "", "progress file for resumable loads (default <csv>.progress)")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if *progress == "" {
		*progress = *csvPath + ".progress"
	}

	if code := run(*csvPath, *dbPath, *table, *progress); code != 0 {
		os.Exit(code)
	}
}

func run(csvPath, dbPath, table, progressPath string) int {
	store, err := sqlitestore.New(dbPath, table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open CSV: %v\n", err)
		return 1
	}
	defer f.Close()

	resumeFrom := readProgress(progressPath)
	if resumeFrom > 0 {
		fmt.Printf("Resuming after row %d\n", resumeFrom)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read CSV header: %v\n", err)
		return 1
	}
	cols, err := mapColumns(header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	ctx := context.Background()
	var loaded, skipped, row int
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: read CSV row %d: %v\n", row+2, err)
			return 1
		}
		row++
		if row <= resumeFrom {
			continue
		}

		profile, ok := cols.profile(record)
		if !ok {
			fmt.Fprintf(os.Stderr, "WARN: row %d has no contact ID, skipping\n", row+1)
			skipped++
			continue
		}

		if err := store.Put(ctx, profile); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: store row %d: %v\n", row+1, err)
			writeProgress(progressPath, row-1)
			return 1
		}
		loaded++

		if row%progressInterval == 0 {
			writeProgress(progressPath, row)
		}
	}

	_ = os.Remove(progressPath)

	total, err := store.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: count recipients: %v\n", err)
	}
	fmt.Printf("Loaded %d rows (%d skipped), %d recipients in %s\n", loaded, skipped, total, dbPath)
	return 0
}

// columnMap resolves CSV header names, including the aliases used by the
// upstream registration export, to profile fields. -1 means absent.
type columnMap struct {
	contactID, latitude, longitude, language, maternalStatus,
	medicalConditions, status, facilityCode, facilityName,
	phoneNumber, lastAlertDate int
}

var columnAliases = map[string][]string{
	"contact_id":         {"contact_id", "contact_uuid", "id"},
	"latitude":           {"latitude", "lat"},
	"longitude":          {"longitude", "lon", "lng"},
	"language":           {"language", "lang"},
	"maternal_status":    {"maternal_status", "anc_pnc_value", "anc_pnc"},
	"medical_conditions": {"medical_conditions", "conditions"},
	"status":             {"status"},
	"facility_code":      {"facility_code"},
	"facility_name":      {"facility_name", "facility"},
	"phone_number":       {"phone_number", "phone", "msisdn"},
	"last_alert_date":    {"last_alert_date"},
}

func mapColumns(header []string) (columnMap, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	find := func(field string) int {
		for _, alias := range columnAliases[field] {
			if i, ok := index[alias]; ok {
				return i
			}
		}
		return -1
	}

	cols := columnMap{
		contactID:         find("contact_id"),
		latitude:          find("latitude"),
		longitude:         find("longitude"),
		language:          find("language"),
		maternalStatus:    find("maternal_status"),
		medicalConditions: find("medical_conditions"),
		status:            find("status"),
		facilityCode:      find("facility_code"),
		facilityName:      find("facility_name"),
		phoneNumber:       find("phone_number"),
		lastAlertDate:     find("last_alert_date"),
	}
	if cols.contactID < 0 {
		return columnMap{}, fmt.Errorf("CSV has no contact ID column (tried %s)",
			strings.Join(columnAliases["contact_id"], ", "))
	}
	return cols, nil
}

func (c columnMap) profile(record []string) (domain.RecipientProfile, bool) {
	get := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	parseFloat := func(i int) float64 {
		v, err := strconv.ParseFloat(get(i), 64)
		if err != nil {
			return 0
		}
		return v
	}

	id := get(c.contactID)
	if id == "" {
		return domain.RecipientProfile{}, false
	}

	conds := get(c.medicalConditions)
	if conds == "" {
		conds = "none"
	}

	return domain.RecipientProfile{
		ContactID:         id,
		Latitude:          parseFloat(c.latitude),
		Longitude:         parseFloat(c.longitude),
		Language:          domain.NormalizeLanguage(get(c.language)),
		MaternalStatus:    domain.ParseMaternalStatus(get(c.maternalStatus)),
		MedicalConditions: conds,
		Status:            get(c.status),
		FacilityCode:      get(c.facilityCode),
		FacilityName:      get(c.facilityName),
		PhoneNumber:       get(c.phoneNumber),
		LastAlertDate:     get(c.lastAlertDate),
	}, true
}

func readProgress(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeProgress(path string, row int) {
	if err := os.WriteFile(path, []byte(strconv.Itoa(row)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "WARN: write progress file: %v\n", err)
	}
}
