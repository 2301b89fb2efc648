// Package bootstrap guarantees that a usable category combo exists on the
// remote instance. Every data element and dataset the app creates must
// reference one, so this service resolves or builds the default
// option -> category -> combo chain with three-tier fallback at each step.
package bootstrap

import (
	"fmt"
	"log"
	"time"

	"dqa360-backend/internal/api"
)

// Service resolves and creates default category metadata
type Service struct {
	client api.MetadataClient
}

// NewService creates a new bootstrap service
func NewService(client api.MetadataClient) *Service {
	return &Service{client: client}
}

// EnsureCategoryComboExists verifies that categoryComboID resolves to a combo
// whose categories are all populated with options, and returns it unchanged
// if so. Otherwise it falls through to CreateDefaultCategoryCombo. The
// returned ID is always usable; only total absence plus creation failure is
// surfaced as an error.
func (s *Service) EnsureCategoryComboExists(categoryComboID string) (string, error) {
	if categoryComboID != "" {
		combo, err := s.client.GetResource("categoryCombos", categoryComboID,
			"id,name,categories[id,name,categoryOptions[id]]")
		if err == nil && comboIsUsable(combo) {
			return categoryComboID, nil
		}
		if err != nil && !api.IsNotFound(err) {
			log.Printf("WARNING: Failed to resolve category combo %s, creating default: %v", categoryComboID, err)
		}
	}

	return s.CreateDefaultCategoryCombo()
}

// CreateDefaultCategoryCombo resolves or creates the default
// option -> category -> combo chain. Repeated calls converge on reuse: each
// step searches before creating, so a chain built by an earlier call is
// found again rather than duplicated.
func (s *Service) CreateDefaultCategoryCombo() (string, error) {
	comboID, err := s.buildDefaultChain()
	if err == nil {
		return comboID, nil
	}
	log.Printf("WARNING: Default category chain failed, trying fallbacks: %v", err)

	// Second tier: any existing combo in the system is better than none
	if id, ok := s.anyExistingCombo(); ok {
		return id, nil
	}

	// Last tier: build a minimal 3-object chain from scratch
	comboID, minimalErr := s.createMinimalChain()
	if minimalErr == nil {
		return comboID, nil
	}

	return "", fmt.Errorf("no category combos available: default chain failed (%v) and minimal chain failed (%v)", err, minimalErr)
}

func (s *Service) buildDefaultChain() (string, error) {
	optionID, err := s.defaultCategoryOption()
	if err != nil {
		return "", fmt.Errorf("failed to resolve default category option: %w", err)
	}

	categoryID, err := s.defaultCategory(optionID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve default category: %w", err)
	}

	return s.defaultCombo(categoryID)
}

// defaultCategoryOption finds an option named/coded "default", else takes any
// existing option, else creates one
func (s *Service) defaultCategoryOption() (string, error) {
	options, err := s.client.QueryResource("categoryOptions", map[string]string{
		"filter": "name:ilike:default",
		"fields": "id,name,code",
		"paging": "true", "pageSize": "5",
	})
	if err == nil && len(options) > 0 {
		return objectID(options[0]), nil
	}

	options, err = s.client.QueryResource("categoryOptions", map[string]string{
		"fields": "id,name",
		"paging": "true", "pageSize": "1",
	})
	if err == nil && len(options) > 0 {
		return objectID(options[0]), nil
	}

	id := s.nextID()
	payload := map[string]interface{}{
		"id":        id,
		"name":      "default",
		"shortName": "default",
		"code":      fmt.Sprintf("DEFAULT_%d", time.Now().Unix()),
	}
	if _, err := s.client.CreateResource("categoryOptions", payload); err != nil {
		return "", fmt.Errorf("failed to create default category option: %w", err)
	}
	log.Printf("Created default category option %s", id)
	return id, nil
}

// defaultCategory finds a category named "default" that actually has options
// (one with zero options is treated as absent and recreated), else any
// populated category, else creates one referencing optionID
func (s *Service) defaultCategory(optionID string) (string, error) {
	categories, err := s.client.QueryResource("categories", map[string]string{
		"filter": "name:ilike:default",
		"fields": "id,name,categoryOptions[id]",
		"paging": "true", "pageSize": "5",
	})
	if err == nil {
		for _, cat := range categories {
			if categoryHasOptions(cat) {
				return objectID(cat), nil
			}
		}
	}

	categories, err = s.client.QueryResource("categories", map[string]string{
		"fields": "id,name,categoryOptions[id]",
		"paging": "true", "pageSize": "10",
	})
	if err == nil {
		for _, cat := range categories {
			if categoryHasOptions(cat) {
				return objectID(cat), nil
			}
		}
	}

	id := s.nextID()
	payload := map[string]interface{}{
		"id":                id,
		"name":              "default",
		"shortName":         "default",
		"code":              fmt.Sprintf("DEFAULT_CATEGORY_%d", time.Now().Unix()),
		"dataDimensionType": "DISAGGREGATION",
		"categoryOptions":   []map[string]interface{}{{"id": optionID}},
	}
	if _, err := s.client.CreateResource("categories", payload); err != nil {
		return "", fmt.Errorf("failed to create default category: %w", err)
	}
	log.Printf("Created default category %s", id)
	return id, nil
}

// defaultCombo finds a previously bootstrapped default combo, else creates one
func (s *Service) defaultCombo(categoryID string) (string, error) {
	combos, err := s.client.QueryResource("categoryCombos", map[string]string{
		"filter": "code:like:DEFAULT_COMBO",
		"fields": "id,name,categories[id,categoryOptions[id]]",
		"paging": "true", "pageSize": "5",
	})
	if err == nil {
		for _, combo := range combos {
			if comboIsUsable(combo) {
				return objectID(combo), nil
			}
		}
	}

	id := s.nextID()
	payload := map[string]interface{}{
		"id":                id,
		"name":              "DQA360 Default",
		"code":              fmt.Sprintf("DEFAULT_COMBO_%d", time.Now().Unix()),
		"dataDimensionType": "DISAGGREGATION",
		"categories":        []map[string]interface{}{{"id": categoryID}},
	}
	if _, err := s.client.CreateResource("categoryCombos", payload); err != nil {
		return "", fmt.Errorf("failed to create default category combo: %w", err)
	}
	log.Printf("Created default category combo %s", id)
	return id, nil
}

func (s *Service) anyExistingCombo() (string, bool) {
	combos, err := s.client.QueryResource("categoryCombos", map[string]string{
		"fields": "id,name",
		"paging": "true", "pageSize": "1",
	})
	if err != nil || len(combos) == 0 {
		return "", false
	}
	id := objectID(combos[0])
	log.Printf("Falling back to existing category combo %s", id)
	return id, id != ""
}

// createMinimalChain builds option, category and combo from scratch without
// any search step. Used only when every other tier has failed.
func (s *Service) createMinimalChain() (string, error) {
	ts := time.Now().Unix()

	optionID := s.nextID()
	if _, err := s.client.CreateResource("categoryOptions", map[string]interface{}{
		"id":        optionID,
		"name":      fmt.Sprintf("DQA default option %d", ts),
		"shortName": fmt.Sprintf("dqa_opt_%d", ts),
		"code":      fmt.Sprintf("DQA_OPT_%d", ts),
	}); err != nil {
		return "", fmt.Errorf("minimal chain: option creation failed: %w", err)
	}

	categoryID := s.nextID()
	if _, err := s.client.CreateResource("categories", map[string]interface{}{
		"id":                categoryID,
		"name":              fmt.Sprintf("DQA default category %d", ts),
		"shortName":         fmt.Sprintf("dqa_cat_%d", ts),
		"code":              fmt.Sprintf("DQA_CAT_%d", ts),
		"dataDimensionType": "DISAGGREGATION",
		"categoryOptions":   []map[string]interface{}{{"id": optionID}},
	}); err != nil {
		return "", fmt.Errorf("minimal chain: category creation failed: %w", err)
	}

	comboID := s.nextID()
	if _, err := s.client.CreateResource("categoryCombos", map[string]interface{}{
		"id":                comboID,
		"name":              fmt.Sprintf("DQA default combo %d", ts),
		"code":              fmt.Sprintf("DQA_COMBO_%d", ts),
		"dataDimensionType": "DISAGGREGATION",
		"categories":        []map[string]interface{}{{"id": categoryID}},
	}); err != nil {
		return "", fmt.Errorf("minimal chain: combo creation failed: %w", err)
	}

	log.Printf("Created minimal category chain, combo %s", comboID)
	return comboID, nil
}

// nextID asks the instance for a system-unique UID, generating one locally
// when that fails
func (s *Service) nextID() string {
	ids, err := s.client.GenerateIDs(1)
	if err != nil || len(ids) == 0 {
		return api.GenerateLocalUID()
	}
	return ids[0]
}

// comboIsUsable reports whether a combo document has at least one category
// and every category carries at least one option
func comboIsUsable(combo map[string]interface{}) bool {
	categories, ok := combo["categories"].([]interface{})
	if !ok || len(categories) == 0 {
		return false
	}
	for _, c := range categories {
		cat, ok := c.(map[string]interface{})
		if !ok || !categoryHasOptions(cat) {
			return false
		}
	}
	return true
}

func categoryHasOptions(category map[string]interface{}) bool {
	options, ok := category["categoryOptions"].([]interface{})
	return ok && len(options) > 0
}

func objectID(obj map[string]interface{}) string {
	id, _ := obj["id"].(string)
	return id
}
