package loadtest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Render replaces {{name}} placeholders in input.
//
// Names are looked up in scopes in order; the first scope holding the name
// wins. {{uuid}} yields a random UUID and {{fake.*}} helpers draw from
// faker:
//
//	{{fake.email}} {{fake.name}} {{fake.username}} {{fake.phone}} {{fake.uuid}}
//	{{fake.int 1 10}} {{fake.float 1 100}} {{fake.pick BUY SELL}}
//
// Unknown placeholders are left as-is.
func Render(input string, faker *gofakeit.Faker, scopes ...map[string]string) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := placeholderPattern.FindStringSubmatch(match)[1]

		for _, scope := range scopes {
			if v, ok := scope[expr]; ok {
				return v
			}
		}

		if expr == "uuid" {
			return uuid.NewString()
		}
		if strings.HasPrefix(expr, "fake.") && faker != nil {
			if v, ok := fake(faker, strings.Fields(strings.TrimPrefix(expr, "fake."))); ok {
				return v
			}
		}
		return match
	})
}

func fake(f *gofakeit.Faker, args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}

	switch args[0] {
	case "email":
		return f.Email(), true
	case "name":
		return f.Name(), true
	case "username":
		return f.Username(), true
	case "phone":
		return f.Phone(), true
	case "uuid":
		return f.UUID(), true
	case "int":
		lo, hi, ok := intBounds(args[1:])
		if !ok {
			return "", false
		}
		return strconv.Itoa(f.IntRange(lo, hi)), true
	case "float":
		lo, hi, ok := floatBounds(args[1:])
		if !ok {
			return "", false
		}
		return strconv.FormatFloat(f.Float64Range(lo, hi), 'f', 2, 64), true
	case "pick":
		if len(args) < 2 {
			return "", false
		}
		return f.RandomString(args[1:]), true
	}
	return "", false
}

func intBounds(args []string) (int, int, bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(args[0])
	hi, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

func floatBounds(args []string) (float64, float64, bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(args[0], 64)
	hi, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil || lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}
