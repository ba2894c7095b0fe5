package erp

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// GatewayError carries the HTTP status and the most useful detail the
// ERP response offered.
type GatewayError struct {
	StatusCode int
	Detail     string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

const maxDetailLen = 500

func newGatewayError(status int, body []byte) *GatewayError {
	return &GatewayError{StatusCode: status, Detail: extractDetail(body)}
}

// extractDetail digs the human-readable message out of a Frappe error
// body: message, then exception, then _server_messages, then the raw
// body truncated.
func extractDetail(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return truncate(msg)
		}
		if exc, ok := payload["exception"].(string); ok && exc != "" {
			return truncate(exc)
		}
		if sm, ok := payload["_server_messages"].(string); ok && sm != "" {
			if decoded := decodeServerMessages(sm); decoded != "" {
				return truncate(decoded)
			}
			return truncate(sm)
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

// _server_messages is a JSON array of JSON-encoded objects with a
// "message" key. Decode best effort and join.
func decodeServerMessages(raw string) string {
	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return ""
	}
	var msgs []string
	for _, entry := range entries {
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(entry), &obj); err == nil && obj.Message != "" {
			msgs = append(msgs, obj.Message)
		} else if entry != "" {
			msgs = append(msgs, entry)
		}
	}
	return strings.Join(msgs, " ")
}

func truncate(s string) string {
	if len(s) > maxDetailLen {
		return s[:maxDetailLen]
	}
	return s
}

// ErrorDetail extracts the normalized detail from any error the gateway
// returned. Transport errors become their own text.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Error()
	}
	return err.Error()
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// CleanText strips markup and collapses an ERP message to one line.
func CleanText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}

// FormatCreateError rewrites known document-creation failures into
// guidance the user can act on; everything else passes through with
// the ERP text attached.
func FormatCreateError(err error) string {
	detail := ErrorDetail(err)
	if detail == "" {
		return "Stock Entry yaratishda xatolik yuz berdi. ERPNext talablarini tekshirib, item ma'lumotlarini yangilang."
	}
	cleaned := CleanText(detail)
	if strings.Contains(cleaned, "Allow Zero Valuation Rate") || strings.Contains(cleaned, "Valuation Rate") {
		return "Hujjat yaratilmadi: ERPNext item uchun baholash (valuation) qiymatini talab qildi.\n" +
			"• Item kartasida `Standard Rate` qo'shing yoki\n" +
			"• Hujjat formasi ichida \"Allow Zero Valuation Rate\" opsiyasini yoqing.\n" +
			"Shundan so'ng bot orqali jarayonni qayta boshlang.\n" +
			"ERP xabari: " + cleaned
	}
	lowered := strings.ToLower(cleaned)
	if strings.Contains(lowered, "negativestockerror") || strings.Contains(lowered, "negative stock") {
		return "Hujjat yaratilmadi: omborda yetarli qoldiq yo'q.\nERP xabari: " + cleaned
	}
	return "Hujjat yaratishda xatolik yuz berdi.\nERP javobi: " + cleaned
}

// FormatActionError explains why a lifecycle action (approve, cancel,
// delete) was refused.
func FormatActionError(actionLabel string, err error) string {
	detail := ErrorDetail(err)
	if detail == "" {
		return actionLabel + " bajarilmadi. ERPNext javobi olinmadi."
	}
	cleaned := CleanText(detail)
	lowered := strings.ToLower(cleaned)
	if strings.Contains(lowered, "cannot delete or cancel") {
		reason := "Bu hujjat ERPNext dagi boshqa hujjatlar (masalan, GL Entry yoki boshqa Stock Entry) bilan bog'langan. " +
			"Avval ularni bekor qilmasdan turib bu amaliyotni bajarib bo'lmaydi."
		return actionLabel + " mumkin emas.\nSabab: " + reason + "\nERP xabari: " + cleaned
	}
	if strings.Contains(lowered, "negativestockerror") || strings.Contains(lowered, "negative stock") {
		reason := "Omborda yetarli qoldiq yo'q, shuning uchun ERPNext amaliyotni rad etdi."
		return actionLabel + " mumkin emas.\nSabab: " + reason + "\nERP xabari: " + cleaned
	}
	return actionLabel + " bajarilmadi.\nERP xabari: " + cleaned
}
