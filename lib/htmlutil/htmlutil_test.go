package htmlutil

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const anchorPage = `<html><body>
<a href="/records/request">Records
	Request</a>
<a href="#top">Back   to   top</a>
<a href="/help"><span>Need</span> <span>Help?</span></a>
</body></html>`

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(anchorPage))
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), doc.Find("a[href]"))
	require.Len(t, anchors, 3)

	// line breaks are stripped, not collapsed, so the name loses its
	// inner whitespace. downstream matching is whitespace-insensitive.
	require.Equal(t, Anchor{Name: "RecordsRequest", Href: "/records/request"}, anchors[0])
	require.Equal(t, Anchor{Name: "Back to top", Href: "#top"}, anchors[1])
	// text is flattened across nested elements
	require.Equal(t, "Need Help?", anchors[2].Name)
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "one two three", CleanText("  one   two   three "))
	require.Equal(t, "onetwo", CleanText("one\n\ttwo"))
	require.Equal(t, "", CleanText("\n\t "))
}
