package fetch

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
)

// ErrExtractionFailed is returned when the expected fields cannot all be
// located in the fetched markup. The partial extract is still returned.
var ErrExtractionFailed = errors.New("scheme fields not found in page")

// Extract holds the structured fields pulled from a scheme page.
type Extract struct {
	Name        string
	Eligibility string
	Benefits    string
}

// ExtractScheme parses HTML and pulls out the scheme name, eligibility text
// and benefits text. The name comes from the first h1 (falling back to the
// page title); eligibility and benefits come from the text following a
// heading that names them. Missing fields yield ErrExtractionFailed
// alongside whatever was found.
func ExtractScheme(content string) (Extract, error) {
	var ex Extract

	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ex, ErrExtractionFailed
	}

	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" {
					title = nodeText(n)
				}
			case "h1":
				if ex.Name == "" {
					ex.Name = nodeText(n)
				}
			case "h2", "h3", "h4":
				heading := strings.ToLower(nodeText(n))
				switch {
				case ex.Eligibility == "" && strings.Contains(heading, "eligib"):
					ex.Eligibility = sectionText(n)
				case ex.Benefits == "" && strings.Contains(heading, "benefit"):
					ex.Benefits = sectionText(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if ex.Name == "" {
		ex.Name = title
	}
	if ex.Name == "" || ex.Eligibility == "" || ex.Benefits == "" {
		return ex, ErrExtractionFailed
	}
	return ex, nil
}

// nodeText collapses the text content of a node and its descendants.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}

// sectionText gathers the text of the siblings following a heading, up to
// the next heading of the same or higher rank.
func sectionText(heading *html.Node) string {
	var parts []string
	for n := heading.NextSibling; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && isHeading(n.Data) {
			break
		}
		if text := nodeText(n); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func isHeading(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}
