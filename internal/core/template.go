package core

import (
	"regexp"
	"strings"
	"time"
)

// CompanyInfo holds the static company details exposed to templates.
type CompanyInfo struct {
	Name  string
	Email string
	Phone string
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// BuildVariables assembles the full template variable map for a message:
// extracted entities, the fixed set of derived/static variables, and a
// bracketed default for every extra name the template declares. Any template
// referencing a well-known placeholder always resolves.
func BuildVariables(msg *InboundMessage, declaredVars string, company CompanyInfo) map[string]string {
	text := msg.Subject + " " + msg.BodyText
	now := time.Now().Format("January 02, 2006")
	tracking := ExtractTrackingNumber(text)

	customerEmail := "[Customer Email]"
	if strings.Contains(msg.Sender, "@") {
		customerEmail = msg.Sender
	}

	vars := map[string]string{
		"Customer Name":  ExtractCustomerName(msg.Sender),
		"Customer Email": customerEmail,

		"Order Number":  ExtractOrderNumber(text),
		"Product Name":  ExtractProductName(text),
		"Refund Amount": ExtractRefundAmount(text),

		"Tracking Number": tracking,
		"Carrier Name":    ExtractCarrierName(text),
		"Tracking URL":    "[Tracking URL - https://track.example.com/" + tracking + "]",
		"Shipping Status": "In Transit",
		"Estimated Date":  "[Estimated Delivery Date]",

		"Order Status":           "Processing",
		"Order Date":             now,
		"Last Update":            now,
		"Next Steps Description": "We are preparing your order for shipment. You will receive a tracking number once it ships.",

		"Company Name":  company.Name,
		"Company Email": company.Email,
		"Phone Number":  company.Phone,

		"Inquiry Topic":     "your inquiry",
		"FAQ URL":           "https://example.com/faq",
		"Size Guide URL":    "https://example.com/size-guide",
		"Return Policy URL": "https://example.com/returns",
	}

	for _, name := range strings.Split(declaredVars, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := vars[name]; !ok {
			vars[name] = "[" + name + "]"
		}
	}

	return vars
}

// RenderTemplate replaces every {Name} placeholder with its variable value in
// a single pass; substituted text is never re-scanned for further variables.
// A final sweep rewrites whatever {identifier} remains to bracket form, so the
// rendered output never contains brace syntax.
func RenderTemplate(content string, vars map[string]string) string {
	rendered := placeholderPattern.ReplaceAllStringFunc(content, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return "[" + name + "]"
	})
	return placeholderPattern.ReplaceAllString(rendered, "[$1]")
}
