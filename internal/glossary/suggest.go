package glossary

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// Suggester proposes target-language renderings for glossary terms using
// the Google Cloud Translation API. The suggestions seed the user glossary;
// they are starting points to review, not final entries.
type Suggester struct {
	client *translate.Client
}

// NewSuggester opens a translation client. credentialsFile may be empty to
// use application default credentials.
func NewSuggester(ctx context.Context, credentialsFile string) (*Suggester, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate client: %w", err)
	}
	return &Suggester{client: client}, nil
}

// Close releases the underlying client.
func (s *Suggester) Close() error {
	return s.client.Close()
}

// Suggest translates each term into the target language and returns a
// term-to-suggestion map. The target must be a valid BCP 47 tag.
func (s *Suggester) Suggest(ctx context.Context, terms []string, target string) (map[string]string, error) {
	if len(terms) == 0 {
		return map[string]string{}, nil
	}
	tag, err := language.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", target, err)
	}

	translations, err := s.client.Translate(ctx, terms, tag, nil)
	if err != nil {
		return nil, fmt.Errorf("term suggestion failed: %w", err)
	}
	if len(translations) != len(terms) {
		return nil, fmt.Errorf("expected %d suggestions, got %d", len(terms), len(translations))
	}

	suggestions := make(map[string]string, len(terms))
	for i, t := range translations {
		suggestions[terms[i]] = t.Text
	}
	return suggestions, nil
}
