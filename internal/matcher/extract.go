package matcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/formflow/automation/internal/models"
)

// ExtractFields parses a form's static HTML (as returned by the Browser
// Capability's get_form_html) into FieldDescriptors, resolving each
// control's associated <label> the way a browser would: by "for" attribute
// first, then by ancestor <label> wrapping. Grounded on the teacher's
// goquery document-parsing helpers in internal/services/crawler/helpers.go.
func ExtractFields(html string) ([]models.FieldDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	labelsByFor := map[string]string{}
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if forID, ok := s.Attr("for"); ok {
			labelsByFor[forID] = strings.TrimSpace(s.Text())
		}
	})

	var fields []models.FieldDescriptor
	doc.Find("input, select, textarea, button").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		typ, _ := s.Attr("type")
		if tag == "input" && typ == "" {
			typ = "text"
		}
		name, _ := s.Attr("name")
		id, _ := s.Attr("id")
		placeholder, _ := s.Attr("placeholder")
		ariaLabel, _ := s.Attr("aria-label")
		autocomplete, _ := s.Attr("autocomplete")
		_, disabled := s.Attr("disabled")
		hiddenAttr := typ == "hidden"

		label := labelsByFor[id]
		if label == "" {
			if wrapper := s.Closest("label"); wrapper.Length() > 0 {
				label = strings.TrimSpace(wrapper.Text())
			}
		}

		var options []string
		if tag == "select" {
			s.Find("option").Each(func(_ int, opt *goquery.Selection) {
				text := strings.TrimSpace(opt.Text())
				if text != "" {
					options = append(options, text)
				}
			})
		}

		selector := cssSelectorFor(tag, id, name)

		fields = append(fields, models.FieldDescriptor{
			Selector:     selector,
			Tag:          tag,
			Type:         typ,
			Name:         name,
			ID:           id,
			Label:        label,
			Placeholder:  placeholder,
			AriaLabel:    ariaLabel,
			Autocomplete: autocomplete,
			Options:      options,
			Visible:      !hiddenAttr,
			Disabled:     disabled,
			Hidden:       hiddenAttr,
		})
	})

	return fields, nil
}

// cssSelectorFor builds the most specific stable selector available,
// preferring #id over [name=...] over a bare tag (spec §6 field descriptors
// must carry a selector the Browser Capability can re-locate the control by).
func cssSelectorFor(tag, id, name string) string {
	if id != "" {
		return "#" + id
	}
	if name != "" {
		return tag + `[name="` + name + `"]`
	}
	return tag
}
