package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "recipients.db"), "recipients")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedProfiles(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Put(ctx, domain.RecipientProfile{
			ContactID:         fmt.Sprintf("c-%03d", i),
			Latitude:          -1.28 - float64(i)*0.01,
			Longitude:         36.81,
			Language:          "sw",
			MaternalStatus:    domain.StatusAntenatal,
			MedicalConditions: "none",
			PhoneNumber:       fmt.Sprintf("+2547001112%02d", i),
		}))
	}
}

func TestScanPage_Pagination(t *testing.T) {
	s := newTestStore(t)
	seedProfiles(t, s, 7)
	ctx := context.Background()

	var all []domain.RecipientProfile
	token := ""
	pages := 0
	for {
		page, err := s.ScanPage(ctx, token, 3)
		require.NoError(t, err)
		all = append(all, page.Profiles...)
		pages++
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	assert.Len(t, all, 7)
	assert.Equal(t, 3, pages)
	assert.Equal(t, "c-000", all[0].ContactID)
	assert.Equal(t, "c-006", all[6].ContactID)
}

func TestScanPage_FullLastPageTerminates(t *testing.T) {
	s := newTestStore(t)
	seedProfiles(t, s, 4)
	ctx := context.Background()

	// 4 rows with page size 2: the second page is full, so it carries a
	// token; the third page is empty and ends the scan.
	page, err := s.ScanPage(ctx, "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, page.NextToken)

	page, err = s.ScanPage(ctx, page.NextToken, 2)
	require.NoError(t, err)
	require.Len(t, page.Profiles, 2)
	require.NotEmpty(t, page.NextToken)

	page, err = s.ScanPage(ctx, page.NextToken, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Profiles)
	assert.Empty(t, page.NextToken)
}

func TestScanPage_NormalizesMaternalStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Rows loaded with raw upstream codes come back normalized.
	_, err := s.db.Exec(`INSERT INTO recipients (contact_id, maternal_status) VALUES ('c-anc', 'ANC'), ('c-raw', 'something')`)
	require.NoError(t, err)

	page, err := s.ScanPage(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Profiles, 2)
	assert.Equal(t, domain.StatusAntenatal, page.Profiles[0].MaternalStatus)
	assert.Equal(t, domain.StatusUnknown, page.Profiles[1].MaternalStatus)
}

func TestMarkAlerted(t *testing.T) {
	s := newTestStore(t)
	seedProfiles(t, s, 1)
	ctx := context.Background()

	require.NoError(t, s.MarkAlerted(ctx, "c-000", "2026-08-29"))

	page, err := s.ScanPage(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, "2026-08-29", page.Profiles[0].LastAlertDate)
}

func TestMarkAlerted_UnknownRecipient(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkAlerted(context.Background(), "missing", "2026-08-29")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPut_UpsertsAndNormalizesLanguage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := domain.RecipientProfile{ContactID: "c-up", Language: "SW_KE", MaternalStatus: domain.StatusPostnatal}
	require.NoError(t, s.Put(ctx, p))

	p.PhoneNumber = "+254700999888"
	require.NoError(t, s.Put(ctx, p))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := s.ScanPage(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, "sw-ke", page.Profiles[0].Language)
	assert.Equal(t, "+254700999888", page.Profiles[0].PhoneNumber)
}
