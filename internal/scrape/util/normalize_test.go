package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocation_DedupesAndStripsLabel(t *testing.T) {
	assert.Equal(t, "Austin, TX", NormalizeLocation("Location:  Austin,  TX, austin"))
	assert.Equal(t, "", NormalizeLocation("   "))
}

func TestSplitLocations(t *testing.T) {
	got := SplitLocations("Austin, TX; Remote | New York, NY; austin, tx")
	assert.Equal(t, []string{"Austin, TX", "Remote", "New York, NY"}, got)
	assert.Nil(t, SplitLocations(""))
}

func TestNormalizeEmploymentType(t *testing.T) {
	cases := map[string]string{
		"FULL_TIME":       "Full Time",
		"Part-time":       "Part Time",
		"Summer Intern":   "Internship",
		"Contractor":      "Contract",
		"":                "",
		"Seasonal worker": "Seasonal worker",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEmploymentType(in), in)
	}
}

func TestParseSalary_Range(t *testing.T) {
	s, ok := ParseSalary("Pay: $120,000 - $150,000 per year plus equity")
	require.True(t, ok)
	require.NotNil(t, s.Floor)
	require.NotNil(t, s.Ceiling)
	assert.Equal(t, 120000.0, *s.Floor)
	assert.Equal(t, 150000.0, *s.Ceiling)
	assert.Equal(t, "USD", s.Currency)
	assert.Equal(t, "year", s.Interval)
}

func TestParseSalary_ThousandsAndHourly(t *testing.T) {
	s, ok := ParseSalary("€45k–55k")
	require.True(t, ok)
	assert.Equal(t, 45000.0, *s.Floor)
	assert.Equal(t, 55000.0, *s.Ceiling)
	assert.Equal(t, "EUR", s.Currency)

	s, ok = ParseSalary("$25/hr")
	require.True(t, ok)
	assert.Equal(t, 25.0, *s.Floor)
	assert.Nil(t, s.Ceiling)
	assert.Equal(t, "hour", s.Interval)
}

func TestParseSalary_NoMatch(t *testing.T) {
	_, ok := ParseSalary("Competitive compensation")
	assert.False(t, ok)
}

func TestCanonicalURL_DropsTracking(t *testing.T) {
	got := CanonicalURL("HTTPS://Boards.Greenhouse.io/acme/jobs/12?utm_source=x&gh_src=y#apply")
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/12", got)
}

func TestAbsURL(t *testing.T) {
	assert.Equal(t, "https://jobs.example.com/jobs/7", AbsURL("https://jobs.example.com/careers", "/jobs/7"))
	assert.Equal(t, "https://other.io/x", AbsURL("https://jobs.example.com", "https://other.io/x"))
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	got := ParseDate("2024-05-01", now)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *got)

	got = ParseDate("Posted 3 Days Ago", now)
	require.NotNil(t, got)
	assert.Equal(t, now.AddDate(0, 0, -3), *got)

	got = ParseDate("Posted 30+ Days Ago", now)
	require.NotNil(t, got)
	assert.Equal(t, now.AddDate(0, 0, -30), *got)

	got = ParseDate("1714521600000", now)
	require.NotNil(t, got)
	assert.Equal(t, 2024, got.Year())

	assert.Nil(t, ParseDate("soon", now))
}
