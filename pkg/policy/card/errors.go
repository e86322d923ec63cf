package card

import (
	"fmt"
	"strings"
)

// ErrorType categorizes a load failure.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // document could not be decoded
	ErrorTypeStructural ErrorType = "structural" // missing or mistyped keys
	ErrorTypeOperator   ErrorType = "operator"   // unknown condition operator
	ErrorTypeOperand    ErrorType = "operand"    // operand incompatible with operator
	ErrorTypeDuplicate  ErrorType = "duplicate"  // duplicate rule id
)

// Error is a single validation failure with the document path it refers to.
type Error struct {
	Type       ErrorType
	Path       string // e.g. rules[2].condition.operator
	Message    string
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", e.Type))
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Suggestion != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Suggestion)
		sb.WriteString(")")
	}
	return sb.String()
}

// ErrorList accumulates every validation failure found in a document.
type ErrorList struct {
	Source string
	Errors []*Error
}

// NewErrorList creates an empty error list for the given source.
func NewErrorList(source string) *ErrorList {
	return &ErrorList{
		Source: source,
		Errors: make([]*Error, 0),
	}
}

// Add appends an error to the list.
func (el *ErrorList) Add(err *Error) {
	el.Errors = append(el.Errors, err)
}

// AddError creates and appends a new error.
func (el *ErrorList) AddError(errType ErrorType, path, message string) {
	el.Add(&Error{Type: errType, Path: path, Message: message})
}

// AddErrorWithSuggestion creates and appends a new error with a suggestion.
func (el *ErrorList) AddErrorWithSuggestion(errType ErrorType, path, message, suggestion string) {
	el.Add(&Error{Type: errType, Path: path, Message: message, Suggestion: suggestion})
}

// HasErrors returns true if the list contains any errors.
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// Count returns the number of errors in the list.
func (el *ErrorList) Count() int {
	return len(el.Errors)
}

// Error implements the error interface.
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}

	var sb strings.Builder
	if el.Source != "" {
		sb.WriteString(fmt.Sprintf("%s: ", el.Source))
	}
	sb.WriteString(fmt.Sprintf("%d validation error(s):", el.Count()))
	for _, err := range el.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// ToError returns nil if the list is empty, otherwise the list itself.
func (el *ErrorList) ToError() error {
	if !el.HasErrors() {
		return nil
	}
	return el
}

// ByType returns all errors of the given type.
func (el *ErrorList) ByType(errType ErrorType) []*Error {
	var result []*Error
	for _, err := range el.Errors {
		if err.Type == errType {
			result = append(result, err)
		}
	}
	return result
}

// HasErrorType returns true if the list contains an error of the given type.
func (el *ErrorList) HasErrorType(errType ErrorType) bool {
	for _, err := range el.Errors {
		if err.Type == errType {
			return true
		}
	}
	return false
}

// suggestOperator proposes the closest known operator name.
func suggestOperator(unknown string) string {
	valid := Operators()

	minDistance := 1000
	var bestMatch string
	for _, name := range valid {
		if d := levenshteinDistance(unknown, name); d < minDistance {
			minDistance = d
			bestMatch = name
		}
	}

	if minDistance < 5 {
		return fmt.Sprintf("did you mean '%s'?", bestMatch)
	}
	return fmt.Sprintf("valid operators: %s", strings.Join(valid, ", "))
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
