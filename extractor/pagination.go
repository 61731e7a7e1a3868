package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"shopify-catalog-scraper/internal/types"
)

var (
	pageNumberRe = regexp.MustCompile(`^\d+$`)
	simpleIDRe   = regexp.MustCompile(`^[A-Za-z][\w-]*$`)
)

// Navigator walks page-number indexed listings. It always targets the page
// right after the active one, and only uses a generic "next" control when
// the numbered control for that page is not rendered.
type Navigator struct {
	markup types.PaginationMarkup
}

// NewNavigator creates a navigator for the given pagination markup
func NewNavigator(markup types.PaginationMarkup) *Navigator {
	return &Navigator{markup: markup}
}

// CurrentPage returns the active page number, or 0 when there is no numbered control
func (n *Navigator) CurrentPage(doc *goquery.Document) int {
	current, _ := n.scan(doc)
	return current
}

// NextPage returns the next page number and the control leading to it.
// A nil control means the listing is exhausted. A zero page number with a
// control means advancing is possible but the page number is unknown.
func (n *Navigator) NextPage(doc *goquery.Document) (int, *types.Control) {
	current, last := n.scan(doc)
	if current == 0 {
		return 0, n.nextButton(doc, 0)
	}

	next := current + 1
	if next <= last {
		if control := n.numberedControl(doc, next); control != nil {
			return next, control
		}
	}
	// the numbered window may not render the next page
	if control := n.nextButton(doc, next); control != nil {
		return next, control
	}
	return 0, nil
}

func (n *Navigator) items(doc *goquery.Document) *goquery.Selection {
	if n.markup.Container == "" {
		return &goquery.Selection{}
	}
	return doc.Find(n.markup.Container).First().Find(n.markup.Item)
}

func (n *Navigator) scan(doc *goquery.Document) (current, last int) {
	n.items(doc).Each(func(_ int, item *goquery.Selection) {
		num := n.pageNumber(item)
		if num == 0 {
			return
		}
		if num > last {
			last = num
		}
		if current == 0 && n.markup.ActiveClass != "" && item.HasClass(n.markup.ActiveClass) {
			current = num
		}
	})
	return current, last
}

func (n *Navigator) pageNumber(item *goquery.Selection) int {
	raw := ""
	if n.markup.PageAttr != "" {
		raw, _ = item.Attr(n.markup.PageAttr)
	} else {
		raw = item.Text()
	}
	raw = strings.TrimSpace(raw)
	if !pageNumberRe.MatchString(raw) {
		return 0
	}
	num, _ := strconv.Atoi(raw)
	return num
}

func (n *Navigator) numberedControl(doc *goquery.Document, page int) *types.Control {
	var control *types.Control
	n.items(doc).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if n.pageNumber(item) != page || n.disabled(item) {
			return true
		}
		link := item
		if n.markup.Link != "" && !item.Is(n.markup.Link) {
			link = item.Find(n.markup.Link).First()
		}
		if link.Length() > 0 {
			control = newControl(link, page)
		}
		return false
	})
	return control
}

func (n *Navigator) nextButton(doc *goquery.Document, page int) *types.Control {
	for _, sel := range n.markup.Next {
		el := doc.Find(sel).First()
		if el.Length() == 0 || n.disabled(el) {
			continue
		}
		link := el
		if !el.Is("a") {
			link = el.Find("a").First()
		}
		if link.Length() == 0 || n.disabled(link) {
			continue
		}
		return newControl(link, page)
	}
	return nil
}

func (n *Navigator) disabled(s *goquery.Selection) bool {
	if n.markup.DisabledClass != "" && (s.HasClass(n.markup.DisabledClass) || s.Parent().HasClass(n.markup.DisabledClass)) {
		return true
	}
	if v, ok := s.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	_, ok := s.Attr("disabled")
	return ok
}

func newControl(link *goquery.Selection, page int) *types.Control {
	href, _ := link.Attr("href")
	return &types.Control{Selector: CSSPath(link), Href: strings.TrimSpace(href), Page: page}
}

// CSSPath builds a selector that matches exactly the first element of s,
// usable both with goquery and document.querySelector.
func CSSPath(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var parts []string
	for node := s.Get(0); node != nil && node.Type == html.ElementNode; node = node.Parent {
		if id := attrOf(node, "id"); id != "" && simpleIDRe.MatchString(id) {
			parts = append(parts, "#"+id)
			break
		}
		if node.Data == "html" {
			parts = append(parts, "html")
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", node.Data, childIndex(node)))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func childIndex(node *html.Node) int {
	idx := 1
	for sib := node.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

func attrOf(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
