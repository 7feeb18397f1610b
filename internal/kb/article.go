package kb

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Article is one knowledge base document.
type Article struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Body     string   `yaml:"-"`
	Path     string   `yaml:"-"`
}

var frontmatterDelim = []byte("---")

// ParseArticle reads a markdown document with a YAML frontmatter header.
// Category defaults to "general" and the id to the file stem.
func ParseArticle(path string, data []byte) (Article, error) {
	var article Article
	body := data

	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	if bytes.HasPrefix(trimmed, frontmatterDelim) {
		rest := trimmed[len(frontmatterDelim):]
		end := bytes.Index(rest, append([]byte("\n"), frontmatterDelim...))
		if end < 0 {
			return Article{}, fmt.Errorf("%s: unterminated frontmatter", path)
		}
		if err := yaml.Unmarshal(rest[:end], &article); err != nil {
			return Article{}, fmt.Errorf("%s: parse frontmatter: %w", path, err)
		}
		body = rest[end+1+len(frontmatterDelim):]
	}

	article.Body = strings.TrimSpace(string(body))
	article.Path = path
	if article.ID == "" {
		article.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if article.Title == "" {
		article.Title = article.ID
	}
	article.Category = strings.ToLower(strings.TrimSpace(article.Category))
	if article.Category == "" {
		article.Category = "general"
	}
	if article.Body == "" {
		return Article{}, fmt.Errorf("%s: empty article body", path)
	}
	return article, nil
}

// LoadArticles reads every *.md file under dir, sorted by path. Files that
// fail to parse are returned in skipped rather than aborting the load.
func LoadArticles(dir string) (articles []Article, skipped map[string]error, err error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, fmt.Errorf("knowledge base directory: %w", err)
	}
	skipped = map[string]error{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			skipped[path] = readErr
			return nil
		}
		article, parseErr := ParseArticle(path, data)
		if parseErr != nil {
			skipped[path] = parseErr
			return nil
		}
		articles = append(articles, article)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].Path < articles[j].Path })
	return articles, skipped, nil
}
