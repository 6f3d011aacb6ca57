package study

import (
	"regexp"
	"strconv"
	"strings"
)

// Session types.
const (
	TypeNormal = "normal"
	TypeFailed = "failed"
	TypeRandom = "random"
)

// Quantity bounds for a session.
const (
	MinQuestions          = 1
	MaxQuestions          = 50
	defaultFailedQuantity = 5
)

// Subjects maps the command stem to the subject display name.
var Subjects = map[string]string{
	"constitucion":            "Constitución",
	"defensanacional":         "Defensa Nacional",
	"rjsp":                    "RJSP",
	"rio":                     "RJSP",
	"minsdef":                 "MINSDEF",
	"organizacionfas":         "Organización FAS",
	"emad":                    "EMAD",
	"et":                      "Ejército de Tierra",
	"armada":                  "Armada",
	"aire":                    "Ejército del Aire",
	"carrera":                 "Carrera Militar",
	"tropa":                   "Tropa y Marinería",
	"rroo":                    "RROO",
	"derechosydeberes":        "Derechos y Deberes",
	"regimendisciplinario":    "Régimen Disciplinario",
	"iniciativasyquejas":      "Iniciativas y Quejas",
	"igualdad":                "Igualdad",
	"omi":                     "OMI",
	"pac":                     "PAC",
	"seguridadnacional":       "Seguridad Nacional",
	"pdc":                     "PDC",
	"onu":                     "ONU",
	"otan":                    "OTAN",
	"osce":                    "OSCE",
	"ue":                      "UE",
	"misionesinternacionales": "Misiones Internacionales",
}

// Command is a parsed study command.
type Command struct {
	Subject  string
	Quantity int
	Type     string
}

var (
	randomPattern = regexp.MustCompile(`^/aleatorias(\d+)$`)
	failedPattern = regexp.MustCompile(`^/(?:([a-zA-Z]+)falladas|falladas)(\d*)$`)
	normalPattern = regexp.MustCompile(`^/([a-zA-Z]+)(\d+)$`)
)

// Parse recognises study commands: /aleatoriasN, /falladas[N],
// /<subject>falladas[N] and /<subject>N, with N between 1 and 50. Only the
// first word of text is considered and a trailing @botname is ignored.
func Parse(text string) (Command, bool) {
	token := firstToken(text)
	if token == "" {
		return Command{}, false
	}

	if m := randomPattern.FindStringSubmatch(token); m != nil {
		quantity, ok := quantityOf(m[1], 0)
		if !ok {
			return Command{}, false
		}
		return Command{Subject: "random", Quantity: quantity, Type: TypeRandom}, true
	}

	if m := failedPattern.FindStringSubmatch(token); m != nil {
		quantity, ok := quantityOf(m[2], defaultFailedQuantity)
		if !ok {
			return Command{}, false
		}
		if m[1] == "" {
			return Command{Subject: "all", Quantity: quantity, Type: TypeFailed}, true
		}
		subject := strings.ToLower(m[1])
		if _, known := Subjects[subject]; !known {
			return Command{}, false
		}
		return Command{Subject: subject, Quantity: quantity, Type: TypeFailed}, true
	}

	m := normalPattern.FindStringSubmatch(token)
	if m == nil {
		return Command{}, false
	}
	subject := strings.ToLower(m[1])
	if _, known := Subjects[subject]; !known {
		return Command{}, false
	}
	quantity, ok := quantityOf(m[2], 0)
	if !ok {
		return Command{}, false
	}

	return Command{Subject: subject, Quantity: quantity, Type: TypeNormal}, true
}

// IsStudyCommand reports whether text starts with a study command.
func IsStudyCommand(text string) bool {
	_, ok := Parse(text)
	return ok
}

// SubjectName returns the display name of a parsed command's subject.
func (c Command) SubjectName() string {
	switch c.Subject {
	case "random":
		return "todas las materias (aleatorias)"
	case "all":
		return "todas las materias"
	}
	if name, ok := Subjects[c.Subject]; ok {
		return name
	}
	return c.Subject
}

func firstToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	token := fields[0]
	if at := strings.Index(token, "@"); at > 0 {
		token = token[:at]
	}
	return token
}

func quantityOf(digits string, fallback int) (int, bool) {
	if digits == "" {
		if fallback == 0 {
			return 0, false
		}
		return fallback, true
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n < MinQuestions || n > MaxQuestions {
		return 0, false
	}
	return n, true
}
