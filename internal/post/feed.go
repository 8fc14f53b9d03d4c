package post

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/hitoshi/titan/internal/model"
)

// rssDocument はRSS 2.0のルート要素。
type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	PubDate     string  `xml:"pubDate"`
	Author      string  `xml:"author,omitempty"`
	Description string  `xml:"description"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// FeedInfo はRSSチャンネルのメタデータ。
type FeedInfo struct {
	Title       string
	BaseURL     string
	Description string
}

// WriteRSS は記事一覧をRSS 2.0として書き出す。記事の順序はそのまま保つ。
func WriteRSS(w io.Writer, info FeedInfo, posts []model.Post) error {
	base := strings.TrimRight(info.BaseURL, "/")

	channel := rssChannel{
		Title:       info.Title,
		Link:        base + "/blog",
		Description: info.Description,
		Items:       make([]rssItem, 0, len(posts)),
	}

	for _, p := range posts {
		item := rssItem{
			Title:       p.Title,
			Link:        base + "/blog#" + p.Slug,
			GUID:        rssGUID{Value: p.Slug},
			PubDate:     p.CreatedAt.UTC().Format(time.RFC1123Z),
			Description: p.Content,
		}
		if p.Author != nil && p.Author.Name != nil {
			item.Author = *p.Author.Name
		}
		channel.Items = append(channel.Items, item)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(rssDocument{Version: "2.0", Channel: channel})
}
