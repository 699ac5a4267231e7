package core

import (
	"net/mail"
	"regexp"
	"strings"
)

// Entity extractors pull template variables out of free-form message text.
// Each extractor returns either the value it found or a bracketed placeholder
// so that template rendering never leaves a brace behind. Extractors never fail.

var (
	orderNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Oo]rder\s*#?\s*[:#]?\s*([A-Z0-9-]{4,20})`),
		regexp.MustCompile(`[Oo]rder\s+[Nn]umber\s*[:#]?\s*([A-Z0-9-]{4,20})`),
		regexp.MustCompile(`[Oo]rder\s*ID\s*[:#]?\s*([A-Z0-9-]{4,20})`),
		regexp.MustCompile(`#\s*([A-Z0-9-]{6,20})`),
		regexp.MustCompile(`订单\s*[:#]?\s*([A-Z0-9-]{4,20})`),
		regexp.MustCompile(`[Pp]urchase\s*#?\s*[:#]?\s*([A-Z0-9-]{4,20})`),
	}

	productNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Pp]roduct\s*[:#]?\s*["']?([^"'\n]{3,50})["']?`),
		regexp.MustCompile(`[Ii]tem\s*[:#]?\s*["']?([^"'\n]{3,50})["']?`),
		regexp.MustCompile(`[Bb]ought\s+["']?([^"'\n]{3,50})["']?`),
		regexp.MustCompile(`[Pp]urchased\s+["']?([^"'\n]{3,50})["']?`),
	}

	refundAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`€\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`£\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)([\d,]+\.?\d*)\s*dollars?`),
		regexp.MustCompile(`(?i)([\d,]+\.?\d*)\s*USD`),
		regexp.MustCompile(`金额\s*[:#]?\s*¥?\s*([\d,]+\.?\d*)`),
	}

	trackingNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Tt]racking\s*#?\s*[:#]?\s*([A-Z0-9]{10,25})`),
		regexp.MustCompile(`[Tt]racking\s+[Nn]umber\s*[:#]?\s*([A-Z0-9]{10,25})`),
		regexp.MustCompile(`[Tt]rack\s*#?\s*[:#]?\s*([A-Z0-9]{10,25})`),
		regexp.MustCompile(`物流单号\s*[:#]?\s*([A-Z0-9]{10,25})`),
		regexp.MustCompile(`快递单号\s*[:#]?\s*([A-Z0-9]{10,25})`),
	}

	knownCarriers = []string{
		"UPS", "FedEx", "DHL", "USPS", "EMS", "SF Express",
		"顺丰", "中通", "圆通", "申通", "韵达", "菜鸟",
		"Amazon Logistics", "OnTrac", "LaserShip",
	}

	addrLocalPart = regexp.MustCompile(`^([^@<\s]+)@`)
)

// ExtractCustomerName derives a display name from a "Name <addr>" sender or,
// failing that, from the capitalized local part of the address.
func ExtractCustomerName(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "Valued Customer"
	}

	if idx := strings.Index(sender, "<"); idx > 0 {
		name := strings.TrimSpace(sender[:idx])
		if name != "" {
			if fields := strings.Fields(name); len(fields) > 1 {
				return fields[0]
			}
			return name
		}
	}

	addr := strings.Trim(sender, "<>")
	if m := addrLocalPart.FindStringSubmatch(addr); m != nil {
		local := m[1]
		if dot := strings.Index(local, "."); dot > 0 {
			local = local[:dot]
		}
		return capitalize(local)
	}

	return "Valued Customer"
}

// SenderAddress strips angle-bracket syntax from a decoded sender, returning
// the bare address for use as a reply recipient.
func SenderAddress(sender string) string {
	if a, err := mail.ParseAddress(sender); err == nil {
		return a.Address
	}
	if start := strings.LastIndex(sender, "<"); start >= 0 {
		if end := strings.Index(sender[start:], ">"); end > 0 {
			return sender[start+1 : start+end]
		}
	}
	return strings.TrimSpace(sender)
}

// ExtractOrderNumber finds an order reference in the message text.
func ExtractOrderNumber(text string) string {
	return firstMatch(text, orderNumberPatterns, "[Order Number]")
}

// ExtractProductName finds a product description in the message text.
func ExtractProductName(text string) string {
	if v := firstMatch(text, productNamePatterns, ""); v != "" {
		return strings.TrimSpace(v)
	}
	return "[Product Name]"
}

// ExtractRefundAmount finds a monetary amount, preserving the currency symbol
// when one is present and defaulting to "$" otherwise.
func ExtractRefundAmount(text string) string {
	if text == "" {
		return "[Refund Amount]"
	}
	for _, p := range refundAmountPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount := strings.ReplaceAll(m[1], ",", "")
		whole := m[0]
		switch {
		case strings.Contains(whole, "€"):
			return "€" + amount
		case strings.Contains(whole, "£"):
			return "£" + amount
		case strings.Contains(whole, "¥"), strings.Contains(whole, "金额"):
			return "¥" + amount
		default:
			return "$" + amount
		}
	}
	return "[Refund Amount]"
}

// ExtractTrackingNumber finds a shipment tracking reference.
func ExtractTrackingNumber(text string) string {
	return firstMatch(text, trackingNumberPatterns, "[Tracking Number]")
}

// ExtractCarrierName matches the text against the fixed known-carrier list,
// case-insensitively.
func ExtractCarrierName(text string) string {
	if text == "" {
		return "[Carrier]"
	}
	upper := strings.ToUpper(text)
	for _, carrier := range knownCarriers {
		if strings.Contains(upper, strings.ToUpper(carrier)) {
			return carrier
		}
	}
	return "[Carrier]"
}

func firstMatch(text string, patterns []*regexp.Regexp, fallback string) string {
	if text == "" {
		return fallback
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return fallback
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
