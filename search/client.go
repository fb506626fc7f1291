package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"artmarket-service/model"
)

// Indexer keeps the catalog searchable. Indexing is best effort: a missed
// index write makes an item unfindable, not unsellable.
type Indexer struct {
	ES *elasticsearch.Client
}

func NewIndexer(url string) (*Indexer, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, err
	}
	return &Indexer{ES: es}, nil
}

func (ix *Indexer) IndexArtwork(a model.Artwork) {
	ix.index("artworks", fmt.Sprintf("%d", a.ID), map[string]interface{}{
		"id": a.ID, "name": a.Title, "desc": a.Desc, "price": a.Price, "sold": a.Sold,
	})
}

func (ix *Indexer) IndexProduct(p model.Product) {
	ix.index("products", fmt.Sprintf("%d", p.ID), map[string]interface{}{
		"id": p.ID, "name": p.Name, "desc": p.Desc, "price": p.Price, "stock": p.Stock,
	})
}

func (ix *Indexer) IndexBook(b model.Book) {
	ix.index("books", fmt.Sprintf("%d", b.ID), map[string]interface{}{
		"id": b.ID, "name": b.Title, "desc": b.Desc, "price": b.Price, "sold": b.Sold,
	})
}

func (ix *Indexer) IndexCourse(c model.Course) {
	ix.index("courses", fmt.Sprintf("%d", c.ID), map[string]interface{}{
		"id": c.ID, "name": c.Title, "desc": c.Desc, "price": c.Price,
	})
}

func (ix *Indexer) index(index, id string, doc map[string]interface{}) {
	if ix == nil || ix.ES == nil {
		return
	}
	body, _ := json.Marshal(doc)
	res, err := ix.ES.Index(
		index,
		strings.NewReader(string(body)),
		ix.ES.Index.WithDocumentID(id),
		ix.ES.Index.WithContext(context.Background()),
	)
	if err != nil {
		log.Printf("es index %s/%s failed: %v", index, id, err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Printf("es index %s/%s failed: %s", index, id, res.Status())
	}
}

func (ix *Indexer) Delete(index, id string) {
	if ix == nil || ix.ES == nil {
		return
	}
	res, err := ix.ES.Delete(index, id)
	if err != nil {
		log.Printf("es delete %s/%s failed: %v", index, id, err)
		return
	}
	res.Body.Close()
}

// Search runs a multi_match over one catalog index and returns raw hits.
func (ix *Indexer) Search(index, query string) ([]map[string]interface{}, error) {
	if ix == nil || ix.ES == nil {
		return nil, fmt.Errorf("search unavailable")
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name", "desc"},
			},
		},
	}
	payload, _ := json.Marshal(body)

	res, err := ix.ES.Search(
		ix.ES.Search.WithContext(context.Background()),
		ix.ES.Search.WithIndex(index),
		ix.ES.Search.WithBody(strings.NewReader(string(payload))),
		ix.ES.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.Status())
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
