package bytesize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count. Unit suffixes are binary: "1K" is 1024 bytes and
// "1G" is 1073741824 bytes, with or without a trailing "B" or "iB".
type Size int64

const (
	Byte     Size = 1
	Kilobyte      = Byte << 10
	Megabyte      = Kilobyte << 10
	Gigabyte      = Megabyte << 10
	Terabyte      = Gigabyte << 10
)

var units = map[string]Size{
	"":  Byte,
	"b": Byte,
	"k": Kilobyte,
	"m": Megabyte,
	"g": Gigabyte,
	"t": Terabyte,
}

// canonical suffixes, largest first
var suffixes = []struct {
	suffix string
	size   Size
}{
	{"T", Terabyte},
	{"G", Gigabyte},
	{"M", Megabyte},
	{"K", Kilobyte},
}

// Parse converts strings such as "1G", "512M", "1.5GiB" or "1048576" to a Size.
func Parse(s string) (Size, error) {
	str := strings.TrimSpace(s)
	if str == "" {
		return 0, fmt.Errorf("empty size")
	}

	i := 0
	for i < len(str) && (str[i] >= '0' && str[i] <= '9' || str[i] == '.') {
		i++
	}
	number, unit := str[:i], strings.ToLower(strings.TrimSpace(str[i:]))
	if number == "" {
		return 0, fmt.Errorf("invalid size %q: missing number", s)
	}

	unit = strings.TrimSuffix(unit, "ib")
	if len(unit) == 2 && unit[1] == 'b' {
		unit = unit[:1]
	}
	multiplier, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit", s)
	}

	if !strings.Contains(number, ".") {
		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}
		if n > math.MaxInt64/int64(multiplier) {
			return 0, fmt.Errorf("invalid size %q: overflow", s)
		}
		return Size(n) * multiplier, nil
	}

	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	bytes := f * float64(multiplier)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: overflow", s)
	}
	return Size(bytes), nil
}

// String returns the shortest exact form, e.g. "1G" or "1536K"
func (s Size) String() string {
	if s > 0 {
		for _, u := range suffixes {
			if s%u.size == 0 {
				return strconv.FormatInt(int64(s/u.size), 10) + u.suffix
			}
		}
	}
	return strconv.FormatInt(int64(s), 10)
}

// Human renders the size for people, e.g. "1.0 GiB"
func (s Size) Human() string {
	if s < 0 {
		return s.String()
	}
	return humanize.IBytes(uint64(s))
}

func (s Size) Bytes() int64 {
	return int64(s)
}

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	parsed, err := Parse(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Size) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var str string
	switch v := raw.(type) {
	case string:
		str = v
	case float64:
		str = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Errorf("size must be a string or a number")
	}

	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
