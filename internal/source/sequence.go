package source

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/muesli/gitcha"
)

// ErrNoSibling is returned when there is no document in the requested
// direction.
var ErrNoSibling = errors.New("no document in that direction")

var lastNumber = regexp.MustCompile(`(\d+)(\D*)$`)

// Sibling returns the document step places away from path. A name carrying
// a chapter number ("chapter-007.md") is stepped numerically first, keeping
// its zero padding; otherwise, or when that file does not exist, the files
// sharing path's directory and extension are ordered naturally and walked.
func Sibling(path string, step int) (string, error) {
	if path == "" || step == 0 {
		return "", ErrNoSibling
	}
	if next, ok := StepNumber(path, step); ok {
		if fi, err := os.Stat(next); err == nil && !fi.IsDir() {
			return next, nil
		}
	}

	files, err := Siblings(path)
	if err != nil {
		return "", err
	}
	i := slices.Index(files, path)
	if i < 0 {
		return "", ErrNoSibling
	}
	j := i + step
	if j < 0 || j >= len(files) {
		return "", ErrNoSibling
	}
	return files[j], nil
}

// StepNumber adds step to the last number in path's file name. Numbers do
// not go below 1.
func StepNumber(path string, step int) (string, bool) {
	dir, name := filepath.Split(path)
	loc := lastNumber.FindStringSubmatchIndex(name)
	if loc == nil {
		return "", false
	}
	digits := name[loc[2]:loc[3]]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", false
	}
	n = max(1, n+step)
	num := strconv.Itoa(n)
	if pad := len(digits) - len(num); pad > 0 {
		num = strings.Repeat("0", pad) + num
	}
	stepped := dir + name[:loc[2]] + num + name[loc[3]:]
	return stepped, stepped != path
}

// Siblings lists the files in path's directory with the same extension,
// in natural order.
func Siblings(path string) ([]string, error) {
	dir := filepath.Dir(path)
	pattern := "*" + filepath.Ext(path)
	ch, err := gitcha.FindAllFilesExcept(dir, []string{pattern}, nil)
	if err != nil {
		return nil, err
	}
	var files []string
	for res := range ch {
		// gitcha descends into subdirectories
		if filepath.Dir(res.Path) != dir {
			continue
		}
		files = append(files, res.Path)
	}
	slices.SortFunc(files, naturalCompare)
	return files, nil
}

// naturalCompare orders names with digit runs compared by value, so that
// "2.md" sorts before "10.md".
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, ra := digitRun(a)
			nb, rb := digitRun(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) - len(tb)
			}
			if c := strings.Compare(ta, tb); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			return int(ca) - int(cb)
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func digitRun(s string) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
