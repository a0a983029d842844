package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the layout of every date column written by the pipeline.
const ISODate = "2006-01-02"

var (
	mdyTime = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})\s+(\d{1,2}):(\d{2})(?::(\d{2}))?`)
	ymdTime = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ]+(\d{1,2}):(\d{2})(?::(\d{2}))?`)

	dailyReportName = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})\.csv$`)
	snapshotName    = regexp.MustCompile(`^(\d{8})_(\d{6})_([A-Za-z0-9]+)\.json$`)
	pressStamp      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2}):(\d{2})$`)
)

// ParseLastUpdate parses the key field of a daily report. An empty value
// means the report's own date at midnight. Anything that is not one of the
// known layouts is an error the caller must treat as fatal for the file.
func ParseLastUpdate(raw string, fileDate time.Time) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Date(fileDate.Year(), fileDate.Month(), fileDate.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	if m := mdyTime.FindStringSubmatch(v); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		return civil(year, atoi(m[1]), atoi(m[2]), atoi(m[4]), atoi(m[5]), atoi(m[6]), v)
	}
	if m := ymdTime.FindStringSubmatch(v); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), atoi(m[6]), v)
	}
	return time.Time{}, fmt.Errorf("unrecognized last update %q", v)
}

var (
	isoDay = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	mdyDay = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
)

// ParseDate parses a bare calendar date written yyyy-mm-dd or M/D/YY[YY].
func ParseDate(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if m := isoDay.FindStringSubmatch(v); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, 0, 0, v)
	}
	if m := mdyDay.FindStringSubmatch(v); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		return civil(year, atoi(m[1]), atoi(m[2]), 0, 0, 0, v)
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

// DailyReportDate extracts the report date from a MM-DD-YYYY.csv file name.
func DailyReportDate(name string) (time.Time, error) {
	m := dailyReportName.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a daily report file name: %q", name)
	}
	return civil(atoi(m[3]), atoi(m[1]), atoi(m[2]), 0, 0, 0, name)
}

// SnapshotTime extracts the capture time and tag from a
// yyyymmdd_hhmmss_tag.json file name.
func SnapshotTime(name string) (time.Time, string, error) {
	m := snapshotName.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, "", fmt.Errorf("not a snapshot file name: %q", name)
	}
	d, c := m[1], m[2]
	t, err := civil(atoi(d[0:4]), atoi(d[4:6]), atoi(d[6:8]), atoi(c[0:2]), atoi(c[2:4]), atoi(c[4:6]), name)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, m[3], nil
}

// PressReleaseTime parses the dd/mm/yyyy HH:MM stamp of a press-release row.
func PressReleaseTime(raw string) (time.Time, error) {
	m := pressStamp.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized press release time %q", raw)
	}
	return civil(atoi(m[3]), atoi(m[2]), atoi(m[1]), atoi(m[4]), atoi(m[5]), 0, raw)
}

// TimestampKey renders t as the yyyymmddhhmmss integer used by snapshot and
// daily-report fact rows.
func TimestampKey(t time.Time) int64 {
	n, _ := strconv.ParseInt(t.Format("20060102150405"), 10, 64)
	return n
}

// civil builds a UTC time and rejects components time.Date would silently
// normalize, such as month 13 or February 30.
func civil(year, month, day, hour, minute, sec int, src string) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != sec {
		return time.Time{}, fmt.Errorf("invalid date or time in %q", src)
	}
	return t, nil
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
