package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// LineLength is the fixed width of both element lines.
const LineLength = 69

var (
	// ErrLineLength reports a line that is not exactly LineLength characters.
	ErrLineLength = errors.New("invalid line length")
	// ErrChecksum reports a mod-10 checksum mismatch.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrField reports a field that is not in the expected format or range.
	ErrField = errors.New("invalid field")
)

// ParseError describes why an element set could not be parsed.
type ParseError struct {
	CatalogNumber CatalogNumber // empty when unreadable
	Line          int           // 1 or 2, 0 when the set as a whole is malformed
	Field         string
	Err           error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse TLE")
	if e.CatalogNumber != "" {
		b.WriteString(" ")
		b.WriteString(string(e.CatalogNumber))
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Field != "" {
		b.WriteString(" field ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Checksum returns the mod-10 checksum of the first 68 characters of line:
// digits count their value, '-' counts 1, everything else 0.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// ParseRecord parses a two-line element set.
func ParseRecord(line1, line2 string) (*Record, error) {
	return ParseTitled("", line1, line2)
}

// ParseTitled parses a two-line element set with an optional title line.
func ParseTitled(name, line1, line2 string) (*Record, error) {
	line1 = trimLine(line1)
	line2 = trimLine(line2)
	p := fieldParser{cat: catalogHint(line1)}

	p.line = 1
	p.checkLine(line1, '1')
	p.line = 2
	p.checkLine(line2, '2')
	if p.err != nil {
		return nil, p.err
	}

	rec := &Record{
		Name:  strings.TrimSpace(name),
		Line1: line1,
		Line2: line2,
	}

	p.line = 1
	cat1, err := ParseCatalogNumber(line1[2:7])
	if err != nil {
		return nil, p.fail("catalog_number", err)
	}
	rec.CatalogNumber = cat1
	rec.Classification = line1[7]
	rec.RawIntlDes = strings.TrimRight(line1[9:17], " ")
	rec.Epoch = p.epoch(line1[18:32])
	rec.MeanMotionDot = p.float("mean_motion_dot", line1[33:43])
	rec.MeanMotionDDot = p.exponent("mean_motion_ddot", line1[44:52])
	rec.BStar = p.exponent("bstar", line1[53:61])
	rec.ElementSet = p.int("element_set", line1[64:68])
	rec.Checksum1 = int(line1[68] - '0')

	p.line = 2
	cat2, err := ParseCatalogNumber(line2[2:7])
	if err != nil {
		return nil, p.fail("catalog_number", err)
	}
	if cat2 != cat1 {
		return nil, p.fail("catalog_number", fmt.Errorf("%w: line 2 has %s, line 1 has %s", ErrField, cat2, cat1))
	}
	rec.InclinationDeg = p.float("inclination", line2[8:16])
	rec.RAANDeg = p.float("raan", line2[17:25])
	rec.Eccentricity = p.eccentricity(line2[26:33])
	rec.ArgPerigeeDeg = p.float("arg_perigee", line2[34:42])
	rec.MeanAnomalyDeg = p.float("mean_anomaly", line2[43:51])
	rec.MeanMotion = p.float("mean_motion", line2[52:63])
	rec.RevolutionCount = p.int("revolution", line2[63:68])
	rec.Checksum2 = int(line2[68] - '0')
	if p.err != nil {
		return nil, p.err
	}

	switch {
	case rec.Eccentricity < 0 || rec.Eccentricity >= 1:
		return nil, p.fail("eccentricity", fmt.Errorf("%w: %g outside [0, 1)", ErrField, rec.Eccentricity))
	case rec.InclinationDeg < 0 || rec.InclinationDeg > 180:
		return nil, p.fail("inclination", fmt.Errorf("%w: %g outside [0, 180]", ErrField, rec.InclinationDeg))
	case rec.MeanMotion <= 0:
		return nil, p.fail("mean_motion", fmt.Errorf("%w: %g must be positive", ErrField, rec.MeanMotion))
	}
	return rec, nil
}

// Parse reads concatenated 2-line or 3-line element sets from r. Sets that
// fail to parse are logged, returned as ParseErrors and skipped; the error
// return is reserved for read failures.
func Parse(r io.Reader, logger *slog.Logger) ([]*Record, []*ParseError, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := trimLine(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var (
		records []*Record
		errs    []*ParseError
	)
	for i := 0; i < len(lines); {
		var name string
		if !isElementLine(lines[i], '1') {
			name = lines[i]
			i++
		}
		if i+1 >= len(lines) || !isElementLine(lines[i], '1') || !isElementLine(lines[i+1], '2') {
			pe := &ParseError{Err: fmt.Errorf("%w: incomplete element set", ErrField)}
			if i < len(lines) {
				pe.CatalogNumber = catalogHint(lines[i])
			}
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			errs = append(errs, pe)
			i++
			continue
		}

		rec, err := ParseTitled(name, lines[i], lines[i+1])
		i += 2
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Err: err}
			}
			logger.Warn("skipping invalid TLE entry",
				"catalog_number", pe.CatalogNumber,
				"name", name,
				"error", err,
			)
			errs = append(errs, pe)
			continue
		}
		records = append(records, rec)
	}
	return records, errs, nil
}

func trimLine(s string) string {
	return strings.TrimRight(s, "\r\n \t")
}

func isElementLine(s string, num byte) bool {
	return len(s) >= 2 && s[0] == num && s[1] == ' '
}

// catalogHint reads columns 3-7 when they hold a catalog number, so that
// errors can still be attributed to a satellite.
func catalogHint(line string) CatalogNumber {
	if len(line) < 7 {
		return ""
	}
	c, err := ParseCatalogNumber(line[2:7])
	if err != nil {
		return ""
	}
	return c
}

// fieldParser records the first failure and turns later calls into no-ops.
type fieldParser struct {
	cat  CatalogNumber
	line int
	err  *ParseError
}

func (p *fieldParser) fail(field string, err error) *ParseError {
	if p.err == nil {
		p.err = &ParseError{CatalogNumber: p.cat, Line: p.line, Field: field, Err: err}
	}
	return p.err
}

func (p *fieldParser) checkLine(line string, num byte) {
	if p.err != nil {
		return
	}
	if len(line) != LineLength {
		p.fail("", fmt.Errorf("%w: got %d, want %d", ErrLineLength, len(line), LineLength))
		return
	}
	if line[0] != num || line[1] != ' ' {
		p.fail("line_number", fmt.Errorf("%w: line must start with %q", ErrField, string(num)+" "))
		return
	}
	last := line[LineLength-1]
	if last < '0' || last > '9' {
		p.fail("checksum", fmt.Errorf("%w: checksum %q is not a digit", ErrField, last))
		return
	}
	if want, got := Checksum(line), int(last-'0'); want != got {
		p.fail("checksum", fmt.Errorf("%w: line says %d, computed %d", ErrChecksum, got, want))
	}
}

// float parses a right-aligned decimal field. At most two leading blanks
// are allowed and none inside the number, so a blank never stands in for a
// digit.
func (p *fieldParser) float(field, s string) float64 {
	if p.err != nil {
		return 0
	}
	num := strings.TrimLeft(s, " ")
	if len(s)-len(num) > 2 || num == "" || strings.Trim(num, "0123456789.+-") != "" {
		p.fail(field, fmt.Errorf("%w: %q is not a right-aligned number", ErrField, s))
		return 0
	}
	// "-.00000063" and " .00016717" are both valid.
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.fail(field, fmt.Errorf("%w: %q is not a number", ErrField, s))
		return 0
	}
	return v
}

// eccentricity parses the seven digits that follow an assumed decimal point.
func (p *fieldParser) eccentricity(s string) float64 {
	if p.err != nil {
		return 0
	}
	if len(s) != 7 || !allDigits(s) {
		p.fail("eccentricity", fmt.Errorf("%w: %q is not seven digits", ErrField, s))
		return 0
	}
	v, _ := strconv.ParseFloat("."+s, 64)
	return v
}

func (p *fieldParser) int(field, s string) int {
	if p.err != nil {
		return 0
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(field, fmt.Errorf("%w: %q is not an integer", ErrField, s))
		return 0
	}
	return v
}

// exponent parses the eight-column assumed-decimal form "±NNNNN±E", meaning
// ±0.NNNNN×10^±E. The mantissa sign may be blank; the exponent sign may be
// blank for a zero exponent.
func (p *fieldParser) exponent(field, s string) float64 {
	if p.err != nil {
		return 0
	}
	if len(s) != 8 || !strings.ContainsRune(" +-", rune(s[0])) || !allDigits(s[1:6]) ||
		!strings.ContainsRune(" +-", rune(s[6])) || !allDigits(s[7:]) {
		p.fail(field, fmt.Errorf("%w: %q is not in the form ±NNNNN±E", ErrField, s))
		return 0
	}
	m, _ := strconv.ParseFloat("."+s[1:6], 64)
	e := int(s[7] - '0')
	if s[6] == '-' {
		e = -e
	}
	if s[0] == '-' {
		m = -m
	}
	return m * math.Pow10(e)
}

// epoch requires the exact "YYDDD.DDDDDDDD" layout: two year digits,
// three zero-padded day digits, a point and eight fraction digits.
func (p *fieldParser) epoch(s string) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	if len(s) != 14 || !allDigits(s[:5]) || s[5] != '.' || !allDigits(s[6:]) {
		p.fail("epoch", fmt.Errorf("%w: %q is not in the form YYDDD.DDDDDDDD", ErrField, s))
		return time.Time{}
	}
	t, err := ParseEpoch(s)
	if err != nil {
		p.fail("epoch", fmt.Errorf("%w: %v", ErrField, err))
	}
	return t
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// ParseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func ParseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	dur := time.Duration((dayOfYear - 1) * float64(24*time.Hour))
	return t.Add(dur).Round(time.Microsecond), nil
}
