package matrix

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
)

const dateLayout = "2006-01-02"

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// templatePlaceholders lists every placeholder an entry's templates may
// reference; {interval} is only required when the entry is
// interval-dimensioned (checked separately in validateEntry).
var templatePlaceholders = []string{
	"{partition}", "{market_path}", "{data_type}", "{symbol}", "{interval}", "{date}", "{filename}",
}

// Load reads and validates an availability matrix from path, failing
// fast on the first structural error with a path-prefixed message
// wrapped in cmn.ErrMatrixInvalid.
func Load(path string) (*AvailabilityMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cmn.Wrap(cmn.KindMatrixInvalid, errors.Wrapf(err, "%s", path))
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, cmn.Wrap(cmn.KindMatrixInvalid, errors.Wrapf(err, "%s", path))
	}
	return m, nil
}

// Decode reads and validates an availability matrix from r.
func Decode(r io.Reader) (*AvailabilityMatrix, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read matrix")
	}

	m := &AvailabilityMatrix{}
	if err := cmn.JSON.Unmarshal(b, m); err != nil {
		return nil, errors.Wrap(err, "parse matrix json")
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func validate(m *AvailabilityMatrix) error {
	if len(m.Entries) == 0 {
		return errors.New("availability_matrix: must contain at least one entry")
	}
	m.index = make(map[string]*Entry, len(m.Entries))
	for i, e := range m.Entries {
		if err := validateEntry(e); err != nil {
			return errors.Wrapf(err, "availability_matrix[%d]", i)
		}
		key := indexKey(e.Market, e.DataType)
		if _, dup := m.index[key]; dup {
			return errors.Errorf("availability_matrix[%d]: duplicate entry for market=%s data_type=%s", i, e.Market, e.DataType)
		}
		m.index[key] = e
	}
	return nil
}

func validateEntry(e *Entry) error {
	if !e.Market.Valid() {
		return errors.Errorf("market: unrecognized value %q", e.Market)
	}
	if e.DataType == "" {
		return errors.New("data_type: must not be empty")
	}
	if len(e.Intervals) == 0 {
		return errors.New("intervals: must be non-empty (use [null] for no interval dimension)")
	}
	if len(e.Partitions) == 0 {
		return errors.New("partitions: must be non-empty")
	}
	for _, p := range e.Partitions {
		if !p.Valid() {
			return errors.Errorf("partitions: unrecognized value %q", p)
		}
	}
	if e.AvailableFrom == "" {
		return errors.New("available_from: must not be empty")
	}
	t, err := time.Parse(dateLayout, e.AvailableFrom)
	if err != nil {
		return errors.Wrapf(err, "available_from: must be YYYY-MM-DD")
	}
	e.availableFrom = t

	if e.URLPattern == "" {
		return errors.New("url_pattern: must not be empty")
	}
	if e.FilenamePattern == "" {
		return errors.New("filename_pattern: must not be empty")
	}

	used := placeholderRe.FindAllString(e.URLPattern+" "+e.FilenamePattern, -1)
	for _, ph := range used {
		if !contains(templatePlaceholders, ph) {
			return errors.Errorf("url_pattern/filename_pattern: unknown placeholder %s", ph)
		}
	}

	hasInterval := e.HasInterval()
	referencesInterval := strings.Contains(e.URLPattern, "{interval}") || strings.Contains(e.FilenamePattern, "{interval}")
	if !hasInterval && referencesInterval {
		return errors.New("intervals is [null] (no interval dimension) but templates reference {interval}")
	}
	if hasInterval && !referencesInterval {
		return errors.New("intervals is interval-dimensioned but templates do not reference {interval}")
	}
	if hasInterval {
		for _, iv := range e.Intervals {
			if iv == nil {
				return errors.New("intervals: mixing null with non-null interval values is not allowed")
			}
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Expand fills in placeholders in pattern with the supplied named
// values. Unset placeholders (e.g. {interval} when interval is nil) must
// already be absent from pattern or the caller made a templating error;
// Expand does not silently drop unknown placeholders.
func Expand(pattern string, values map[string]string) string {
	out := pattern
	for k, v := range values {
		out = strings.ReplaceAll(out, fmt.Sprintf("{%s}", k), v)
	}
	return out
}
