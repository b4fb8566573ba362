package whatsapp

import (
	"sort"
	"strings"
)

// Business template names. The _ar variants carry the same placeholders
// rendered in Arabic.
const (
	TemplateOrderConfirmation   = "order_confirmation"
	TemplateOrderConfirmationAr = "order_confirmation_ar"
	TemplateShippingUpdate      = "shipping_update"
	TemplateShippingUpdateAr    = "shipping_update_ar"
	TemplateCancelPrompt        = "cancel_confirmation"
	TemplateCancelPromptAr      = "cancel_confirmation_ar"
)

// templateLanguageOverrides pins templates whose names do not follow the
// suffix convention to an explicit language code.
var templateLanguageOverrides = map[string]string{
	"order_followup_arabic": "ar",
}

// templateBodyFields lists the body placeholders of known templates in the
// exact order they appear in the approved layout.
var templateBodyFields = map[string][]string{
	TemplateOrderConfirmation:   {"name", "orderid", "address", "price"},
	TemplateOrderConfirmationAr: {"name", "orderid", "address", "price"},
	TemplateShippingUpdate:      {"name", "orderid"},
	TemplateShippingUpdateAr:    {"name", "orderid"},
	TemplateCancelPrompt:        {"name", "orderid"},
	TemplateCancelPromptAr:      {"name", "orderid"},
}

// templateHeaderFields lists header placeholders for templates that have one.
var templateHeaderFields = map[string][]string{
	TemplateOrderConfirmation:   {"orderid"},
	TemplateOrderConfirmationAr: {"orderid"},
}

// TemplateLanguage resolves the language code for a template name: explicit
// overrides first, then the _ar suffix convention, defaulting to English.
func TemplateLanguage(name string) string {
	if code, ok := templateLanguageOverrides[name]; ok {
		return code
	}
	if strings.HasSuffix(strings.ToLower(name), "_ar") {
		return "ar"
	}
	return "en"
}

// CounterpartTemplate returns the same template in the other language.
func CounterpartTemplate(name string) string {
	if TemplateLanguage(name) == "ar" {
		return strings.TrimSuffix(name, "_ar")
	}
	return name + "_ar"
}

// TemplateForLanguage picks the language-appropriate variant of a base
// (English) template name.
func TemplateForLanguage(base, language string) string {
	if language == "ar" {
		return base + "_ar"
	}
	return base
}

// BuildTemplate produces the structured payload for a template send. Known
// templates emit their declared fields in fixed order, with missing variables
// rendered as empty strings so positional alignment never shifts. Unknown
// templates fall back to emitting every supplied variable as a named
// parameter.
func BuildTemplate(name string, variables map[string]string) Template {
	tmpl := Template{
		Name:     name,
		Language: Language{Code: TemplateLanguage(name)},
	}

	if header, ok := templateHeaderFields[name]; ok {
		tmpl.Components = append(tmpl.Components, Component{
			Type:       "header",
			Parameters: namedParameters(header, variables),
		})
	}

	if fields, ok := templateBodyFields[name]; ok {
		tmpl.Components = append(tmpl.Components, Component{
			Type:       "body",
			Parameters: namedParameters(fields, variables),
		})
		return tmpl
	}

	if len(variables) == 0 {
		return tmpl
	}

	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tmpl.Components = append(tmpl.Components, Component{
		Type:       "body",
		Parameters: namedParameters(keys, variables),
	})
	return tmpl
}

func namedParameters(fields []string, variables map[string]string) []Parameter {
	params := make([]Parameter, 0, len(fields))
	for _, field := range fields {
		params = append(params, Parameter{
			Type:          "text",
			ParameterName: field,
			Text:          variables[field],
		})
	}
	return params
}
