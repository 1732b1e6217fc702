package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
global:
  project_id: eavs-prod
  analytics_dataset: eavs_analytics
  bucket: eavs-survey-data
  stage: eavs_stage
  file_format: eavs_csv_format

registration_mappings:
  standard_fields:
    - voters_registered
    - voters_active
    - voters_inactive
  2022:
    voters_registered: A1a
    voters_active: A3a
    voters_inactive: A3b
  24:
    voters_registered: total_reg
    voters_active: active_reg
    voters_inactive: null
  "2020":
    voters_registered: A1a
    voters_active: "null"
    voters_inactive: A3b

mail_mappings:
  standard_fields:
    - ballots_transmitted
  2024:
    ballots_transmitted: C1a
`

func TestParseGlobal(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, "eavs-prod", store.Global.ProjectID)
	assert.Equal(t, "eavs_analytics", store.Global.AnalyticsDataset)
	assert.Equal(t, "eavs-survey-data", store.Global.Bucket)
	assert.Equal(t, "eavs_stage", store.Global.Stage)
	assert.Equal(t, "eavs_csv_format", store.Global.FileFormat)
}

func TestYearKeyNormalization(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	sec := store.Section("registration_mappings")
	// Integer 2022, two-digit 24, and quoted "2020" all land on 4-digit keys.
	assert.Equal(t, []string{"2020", "2022", "2024"}, sec.Years())

	m := sec.YearMapping("2024")
	assert.Equal(t, "total_reg", m["voters_registered"])
}

func TestYearMappingLookupNormalizes(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	sec := store.Section("registration_mappings")
	assert.Equal(t, sec.YearMapping("2024"), sec.YearMapping("24"))
	assert.True(t, sec.HasYear("24"))
	assert.False(t, sec.HasYear("2018"))
}

func TestNullSentinelNormalization(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	sec := store.Section("registration_mappings")
	// YAML null and the string "null" both collapse to the sentinel.
	assert.Equal(t, NullField, sec.YearMapping("2024")["voters_inactive"])
	assert.Equal(t, NullField, sec.YearMapping("2020")["voters_active"])
	assert.Equal(t, "A3b", sec.YearMapping("2020")["voters_inactive"])
}

func TestMissingSectionAndYearAreEmptyNotError(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	sec := store.Section("uocava_mappings")
	assert.NotNil(t, sec)
	assert.Empty(t, sec.Years())
	assert.Empty(t, sec.YearMapping("2024"))

	reg := store.Section("registration_mappings")
	assert.Empty(t, reg.YearMapping("1999"))
}

func TestStandardFieldsPreserveOrder(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	sec := store.Section("registration_mappings")
	assert.Equal(t, []string{"voters_registered", "voters_active", "voters_inactive"}, sec.StandardFields)
}

func TestSectionNames(t *testing.T) {
	store, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"mail_mappings", "registration_mappings"}, store.SectionNames())
	assert.True(t, store.HasSection("mail_mappings"))
	assert.False(t, store.HasSection("global"))
}

func TestNormalizeYear(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024", "2024", true},
		{"24", "2024", true},
		{"04", "2004", true},
		{" 2022 ", "2022", true},
		{"202", "", false},
		{"abcd", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeYear(tt.in)
		assert.Equal(t, tt.ok, ok, "NormalizeYear(%q)", tt.in)
		assert.Equal(t, tt.want, got, "NormalizeYear(%q)", tt.in)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("global: [unclosed"))
	assert.Error(t, err)
}

func TestParseInvalidYearKey(t *testing.T) {
	doc := `
registration_mappings:
  standard_fields: [a]
  twenty24:
    a: b
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}
