package parse

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/activity-cli/internal/model"
)

// NormalizeDate converts a D/M/Y token to a calendar date. Two-digit years
// are read as 20YY. ok is false for anything that is not a valid date.
func NormalizeDate(token string) (model.Date, bool) {
	parts := strings.Split(token, "/")
	if len(parts) != 3 {
		return model.Date{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return model.Date{}, false
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if year < 100 {
		year += 2000
	}
	return model.NewDate(year, time.Month(month), day)
}
