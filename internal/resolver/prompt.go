package resolver

import (
	"fmt"
	"strings"
)

const selectorSystemPrompt = `You are an engineer specialised in Japanese web contact forms.
Given the HTML of a page, identify a CSS selector for each input slot listed below.
Respond with a single JSON object only.

Rules:
- Use null for any slot that is not present in the supplied HTML. Never invent selectors;
  every selector must match an element that appears in the markup.
- Prefer #id, then [name="..."], then a short unique attribute selector.
- Names: when the name is split over two inputs (姓 / 名), return "last_name" for the first
  and "first_name" for the second. Use "person_name" only when there is a single name input.
- Buttons: forms are often two-step. "confirm_button" is the button that leads to a
  confirmation page (確認, 確認画面へ, 入力内容を確認, 次へ). "submit_button" is the final send
  button (送信, 送信する, 完了, Submit). When only one button exists, decide from its label.
- "inquiry_category_selector" is the inquiry type control. For a <select>, also return the
  value of the option that best matches a business or sales inquiry in "inquiry_category_value".
  For radio buttons or checkboxes, point the selector at the option to click.`

// selectorKeys are the slots, in the order the model is asked for them.
var selectorKeys = []string{
	"company_name",
	"last_name",
	"first_name",
	"person_name",
	"department_name",
	"phone_number",
	"email",
	"company_url",
	"subject_title",
	"body",
	"agreement_checkbox",
	"confirm_button",
	"submit_button",
	"inquiry_category_selector",
	"inquiry_category_value",
}

func buildSelectorPrompt(sanitized string) string {
	var b strings.Builder
	b.WriteString("Output format (JSON only):\n{\n")
	for i, k := range selectorKeys {
		sep := ","
		if i == len(selectorKeys)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %q: string or null%s\n", k, sep)
	}
	b.WriteString("}\n\nHTML:\n")
	b.WriteString(sanitized)
	return b.String()
}

const tagsSystemPrompt = `You are a B2B marketing analyst. From the supplied page, determine the industry the
company belongs to and the industries it most likely sells to. Reply with 5 to 10 short tags
separated by commas and nothing else, for example: IT, SaaS, Construction DX, Marketing support.`

func buildTagsPrompt(url, sanitized string) string {
	return fmt.Sprintf("URL: %s\n\nPage:\n%s", url, sanitized)
}
