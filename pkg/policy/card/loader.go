package card

import (
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Top-level document keys.
const (
	KeyVersion    = "policy_card_version"
	KeyName       = "name"
	KeyScope      = "scope"
	KeyRules      = "rules"
	KeyEscalation = "escalation"
	KeyMonitoring = "monitoring"
	KeyKPIs       = "kpis_thresholds"
	KeyAssurance  = "assurance_mapping"
)

// LoadBytes decodes a YAML or JSON policy card and loads it. source is used
// in error messages and recorded on the returned document.
func LoadBytes(data []byte, source string) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		errs := NewErrorList(source)
		errs.AddErrorWithSuggestion(ErrorTypeSyntax, "",
			fmt.Sprintf("document could not be decoded: %v", err),
			"check indentation, colons and quotes")
		return nil, errs
	}

	m, ok := Normalize(raw).(map[string]any)
	if !ok {
		errs := NewErrorList(source)
		errs.AddError(ErrorTypeStructural, "", "document must be a mapping")
		return nil, errs
	}

	return load(m, source)
}

// Load validates a decoded document tree and builds the typed model.
// On failure it returns an *ErrorList with every problem found and no document.
func Load(raw map[string]any) (*Document, error) {
	return load(raw, "")
}

func load(raw map[string]any, source string) (*Document, error) {
	l := &loader{errs: NewErrorList(source)}
	doc := l.document(raw)
	if l.errs.HasErrors() {
		return nil, l.errs
	}
	doc.Source = source
	return doc, nil
}

type loader struct {
	errs *ErrorList
}

func (l *loader) document(raw map[string]any) *Document {
	doc := &Document{Rules: []Rule{}}

	if v, ok := raw[KeyVersion]; !ok {
		l.missing("", KeyVersion, `"1.0"`)
	} else if s, ok := versionString(v); !ok || s == "" {
		l.errs.AddError(ErrorTypeStructural, KeyVersion, "must be a non-empty string")
	} else {
		doc.Version = s
	}

	if v, ok := raw[KeyName]; !ok {
		l.missing("", KeyName, `"my-policy"`)
	} else if s, ok := v.(string); !ok || s == "" {
		l.errs.AddError(ErrorTypeStructural, KeyName, "must be a non-empty string")
	} else {
		doc.Name = s
	}

	if v, ok := raw[KeyScope]; !ok {
		l.missing("", KeyScope, "{risk_level: ..., geography: [...], intended_use: [...]}")
	} else {
		doc.Scope = l.scope(v)
	}

	if v, ok := raw[KeyRules]; !ok {
		l.missing("", KeyRules, "[]")
	} else {
		doc.Rules = l.rules(v)
	}

	if v, ok := raw[KeyEscalation]; ok && v != nil {
		doc.Triggers = l.escalation(v)
	}
	if v, ok := raw[KeyMonitoring]; ok && v != nil {
		doc.Detectors = l.monitoring(v)
	}
	if v, ok := raw[KeyKPIs]; ok && v != nil {
		doc.KPIs = l.kpis(v)
	}
	if v, ok := raw[KeyAssurance]; ok && v != nil {
		doc.Assurance = l.assurance(v)
	}

	return doc
}

func (l *loader) missing(parent, key, example string) {
	path := key
	if parent != "" {
		path = parent + "." + key
	}
	l.errs.AddErrorWithSuggestion(ErrorTypeStructural, path,
		fmt.Sprintf("missing required field '%s'", key),
		fmt.Sprintf("add '%s: %s'", key, example))
}

func (l *loader) scope(v any) Scope {
	if v == nil {
		return Scope{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyScope, "must be a mapping")
		return Scope{}
	}

	var s Scope
	if rl, ok := m["risk_level"]; ok && rl != nil {
		if str, ok := rl.(string); ok {
			s.RiskLevel = str
		} else {
			l.errs.AddError(ErrorTypeStructural, KeyScope+".risk_level", "must be a string")
		}
	}
	s.Geography = l.stringList(m["geography"], KeyScope+".geography")
	s.IntendedUse = l.stringList(m["intended_use"], KeyScope+".intended_use")
	return s
}

func (l *loader) rules(v any) []Rule {
	if v == nil {
		return []Rule{}
	}
	list, ok := v.([]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyRules, "must be a list")
		return []Rule{}
	}

	rules := make([]Rule, 0, len(list))
	seen := make(map[string]int, len(list))
	for i, item := range list {
		rule := l.rule(i, item)
		if rule.ID != "" {
			if first, dup := seen[rule.ID]; dup {
				l.errs.AddError(ErrorTypeDuplicate, fmt.Sprintf("rules[%d].id", i),
					fmt.Sprintf("duplicate rule id %q (first defined at rules[%d])", rule.ID, first))
			} else {
				seen[rule.ID] = i
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

func (l *loader) rule(i int, v any) Rule {
	path := fmt.Sprintf("rules[%d]", i)
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, path, "rule must be a mapping")
		return Rule{}
	}

	var r Rule
	r.ID, _ = l.requiredString(m, "id", path)

	if effect, ok := l.requiredString(m, "effect", path); ok {
		r.Effect = Effect(effect)
		if !r.Effect.Valid() {
			l.errs.AddErrorWithSuggestion(ErrorTypeStructural, path+".effect",
				fmt.Sprintf("unknown effect %q", effect), "effect must be 'deny' or 'warn'")
		}
	}

	if c, ok := m["condition"]; !ok || c == nil {
		l.missing(path, "condition", "{field: ..., operator: ..., value: ...}")
	} else {
		r.Condition = l.condition(path+".condition", c)
	}

	r.Reason, _ = l.requiredString(m, "reason", path)
	return r
}

func (l *loader) condition(path string, v any) Condition {
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, path, "condition must be a mapping")
		return Condition{}
	}

	var c Condition
	c.Field, _ = l.requiredString(m, "field", path)

	opName, ok := l.requiredString(m, "operator", path)
	if !ok {
		return c
	}
	c.Operator = Operator(opName)
	if !c.Operator.Valid() {
		l.errs.AddErrorWithSuggestion(ErrorTypeOperator, path+".operator",
			fmt.Sprintf("unknown operator %q", opName), suggestOperator(opName))
		return c
	}

	value, hasValue := m["value"]
	values, hasValues := m["values"]
	if hasValue && hasValues {
		l.errs.AddError(ErrorTypeOperand, path, "specify either 'value' or 'values', not both")
		return c
	}
	operandKey := "value"
	operand := value
	if hasValues {
		operandKey = "values"
		operand = values
	}
	present := hasValue || hasValues
	operandPath := path + "." + operandKey

	switch c.Operator.OperandKind() {
	case OperandNone:
		c.Operand = nil

	case OperandScalar:
		if !present || operand == nil {
			l.errs.AddError(ErrorTypeOperand, path, fmt.Sprintf("operator %s requires a value", c.Operator))
			break
		}
		if _, isList := operand.([]any); isList {
			l.errs.AddError(ErrorTypeOperand, operandPath,
				fmt.Sprintf("operator %s requires a single value, got a list", c.Operator))
			break
		}
		s, ok := normalizeScalar(operand)
		if !ok {
			l.errs.AddError(ErrorTypeOperand, operandPath,
				fmt.Sprintf("operator %s requires a string, number or boolean, got %T", c.Operator, operand))
			break
		}
		c.Operand = s

	case OperandList:
		list, ok := operand.([]any)
		if !present || !ok {
			l.errs.AddErrorWithSuggestion(ErrorTypeOperand, operandPath,
				fmt.Sprintf("operator %s requires a list of values", c.Operator),
				"use 'values: [a, b]'")
			break
		}
		normalized := make([]any, 0, len(list))
		for j, item := range list {
			s, ok := normalizeScalar(item)
			if !ok {
				l.errs.AddError(ErrorTypeOperand, fmt.Sprintf("%s[%d]", operandPath, j),
					fmt.Sprintf("list element must be a string, number or boolean, got %T", item))
				continue
			}
			normalized = append(normalized, s)
		}
		c.Operand = normalized

	case OperandNumber:
		f, ok := ToFloat(operand)
		if !present || !ok {
			l.errs.AddError(ErrorTypeOperand, operandPath,
				fmt.Sprintf("operator %s requires a numeric value", c.Operator))
			break
		}
		c.Operand = f
	}

	return c
}

func (l *loader) escalation(v any) []Trigger {
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyEscalation, "must be a mapping")
		return nil
	}
	raw, ok := m["triggers"]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyEscalation+".triggers", "must be a list")
		return nil
	}

	triggers := make([]Trigger, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("%s.triggers[%d]", KeyEscalation, i)
		tm, ok := item.(map[string]any)
		if !ok {
			l.errs.AddError(ErrorTypeStructural, path, "trigger must be a mapping")
			continue
		}
		var t Trigger
		t.Condition, _ = l.requiredString(tm, "condition", path)
		t.Action, _ = l.requiredString(tm, "action", path)
		if t.Condition != "" {
			t.Expr, t.ParseErr = ParseComparison(t.Condition)
		}
		triggers = append(triggers, t)
	}
	return triggers
}

func (l *loader) monitoring(v any) []Detector {
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyMonitoring, "must be a mapping")
		return nil
	}
	raw, ok := m["detectors"]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyMonitoring+".detectors", "must be a list")
		return nil
	}

	detectors := make([]Detector, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("%s.detectors[%d]", KeyMonitoring, i)
		dm, ok := item.(map[string]any)
		if !ok {
			l.errs.AddError(ErrorTypeStructural, path, "detector must be a mapping")
			continue
		}
		var d Detector
		d.Name, _ = l.requiredString(dm, "name", path)
		d.Threshold, _ = l.requiredNumber(dm, "threshold", path)
		if a, ok := dm["action"]; ok && a != nil {
			if s, ok := a.(string); ok {
				d.Action = s
			} else {
				l.errs.AddError(ErrorTypeStructural, path+".action", "must be a string")
			}
		}
		detectors = append(detectors, d)
	}
	return detectors
}

func (l *loader) kpis(v any) []KPIThreshold {
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyKPIs, "must be a mapping")
		return nil
	}
	raw, ok := m["thresholds"]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyKPIs+".thresholds", "must be a list")
		return nil
	}

	thresholds := make([]KPIThreshold, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("%s.thresholds[%d]", KeyKPIs, i)
		km, ok := item.(map[string]any)
		if !ok {
			l.errs.AddError(ErrorTypeStructural, path, "threshold must be a mapping")
			continue
		}
		var k KPIThreshold
		k.Metric, _ = l.requiredString(km, "metric", path)
		k.Target, _ = l.requiredNumber(km, "target", path)
		if c, ok := km["critical_threshold"]; ok && c != nil {
			if f, ok := ToFloat(c); ok {
				k.Critical = &f
			} else {
				l.errs.AddError(ErrorTypeStructural, path+".critical_threshold", "must be a number")
			}
		}
		thresholds = append(thresholds, k)
	}
	return thresholds
}

func (l *loader) assurance(v any) AssuranceMapping {
	m, ok := v.(map[string]any)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, KeyAssurance, "must be a mapping of framework to control ids")
		return nil
	}
	mapping := make(AssuranceMapping, len(m))
	for framework, controls := range m {
		list := l.stringList(controls, KeyAssurance+"."+framework)
		if list == nil {
			list = []string{}
		}
		mapping[framework] = list
	}
	return mapping
}

func (l *loader) requiredString(m map[string]any, key, parent string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		l.missing(parent, key, "...")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		l.errs.AddError(ErrorTypeStructural, parent+"."+key, "must be a non-empty string")
		return "", false
	}
	return s, true
}

func (l *loader) requiredNumber(m map[string]any, key, parent string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		l.missing(parent, key, "0")
		return 0, false
	}
	f, ok := ToFloat(v)
	if !ok {
		l.errs.AddError(ErrorTypeStructural, parent+"."+key, "must be a number")
		return 0, false
	}
	return f, true
}

// stringList accepts a list of strings or a single string. nil yields nil.
func (l *loader) stringList(v any, path string) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				l.errs.AddError(ErrorTypeStructural, fmt.Sprintf("%s[%d]", path, i), "must be a string")
				continue
			}
			out = append(out, s)
		}
		return out
	default:
		l.errs.AddError(ErrorTypeStructural, path, "must be a list of strings")
		return nil
	}
}

func versionString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatFloat(val, 'f', 1, 64), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}
