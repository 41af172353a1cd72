// Package opml imports and exports the sub-feed catalog as OPML.
//
// Each API version is a folder outline; each sub-feed is an outline whose
// xmlUrl is the feed's request URL. The storage directory and file prefix
// travel as extra attributes.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
)

// OutlineType marks sub-feed outlines.
const OutlineType = "turf-feed"

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (API version or sub-feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Dir      string    `xml:"dir,attr,omitempty"`
	FileKind string    `xml:"fileKind,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML catalog and returns its sub-feeds in document order.
func Parse(r io.Reader) ([]model.SubFeed, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var feeds []model.SubFeed
	var walk func(outlines []Outline) error
	walk = func(outlines []Outline) error {
		for _, o := range outlines {
			if o.XMLURL != "" {
				feed, err := subFeed(o)
				if err != nil {
					return err
				}
				feeds = append(feeds, feed)
			} else if len(o.Outlines) > 0 {
				if err := walk(o.Outlines); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(doc.Body.Outlines); err != nil {
		return nil, err
	}
	return feeds, nil
}

// subFeed recovers a sub-feed from its request URL, "<base>/<version>/feeds/<kind>".
func subFeed(o Outline) (model.SubFeed, error) {
	u, err := url.Parse(o.XMLURL)
	if err != nil {
		return model.SubFeed{}, fmt.Errorf("outline %q: %w", o.Text, err)
	}
	parts := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(parts) < 3 || parts[len(parts)-2] != "feeds" {
		return model.SubFeed{}, fmt.Errorf("outline %q: %s is not a feed URL", o.Text, o.XMLURL)
	}
	kind, err := url.PathUnescape(parts[len(parts)-1])
	if err != nil {
		return model.SubFeed{}, fmt.Errorf("outline %q: %w", o.Text, err)
	}
	feed := model.SubFeed{
		Kind:       kind,
		APIVersion: parts[len(parts)-3],
		Dir:        o.Dir,
		FileKind:   o.FileKind,
	}
	if feed.Dir == "" {
		feed.Dir = "feeds_" + feed.APIVersion
	}
	if feed.FileKind == "" {
		feed.FileKind = "feeds_" + strings.ReplaceAll(kind, "+", "_")
	}
	return feed, nil
}

// Export generates an OPML document for feeds, grouped by API version in
// the order versions first appear.
func Export(title, baseURL string, feeds []model.SubFeed, created time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: created.Format(time.RFC1123Z),
		},
	}

	base := strings.TrimRight(baseURL, "/")
	folders := make(map[string]int)
	for _, f := range feeds {
		feedOutline := Outline{
			Text:     f.ID(),
			Title:    f.Kind,
			Type:     OutlineType,
			XMLURL:   base + f.RequestPath(),
			Dir:      f.Dir,
			FileKind: f.FileKind,
		}
		i, ok := folders[f.APIVersion]
		if !ok {
			i = len(doc.Body.Outlines)
			folders[f.APIVersion] = i
			doc.Body.Outlines = append(doc.Body.Outlines, Outline{Text: f.APIVersion, Title: f.APIVersion})
		}
		doc.Body.Outlines[i].Outlines = append(doc.Body.Outlines[i].Outlines, feedOutline)
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
