package assessment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqa360-backend/internal/models"
)

func fixedBuilder() *Builder {
	b := NewBuilder(testConfig())
	b.Clock = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func TestBuilderBuild(t *testing.T) {
	t.Run("Should compose a full document from minimal manual input", func(t *testing.T) {
		b := fixedBuilder()

		doc := b.Build(
			map[string]interface{}{"id": "a1", "name": "Q1"},
			nil,
			[]map[string]interface{}{{"id": "ds1", "name": "Immunization"}},
			[]map[string]interface{}{{"id": "de1", "name": "Doses given"}},
			[]map[string]interface{}{{"id": "ou1", "name": "District A", "level": 2}},
			nil, nil,
			"tester",
		)

		assert.Equal(t, "a1", doc.ID)
		assert.Equal(t, "3.0.0", doc.Version)
		assert.Equal(t, "nested", doc.Structure)
		assert.Equal(t, "manual", doc.MetadataSource)
		assert.Equal(t, "Q1", doc.Info.Name)
		assert.Equal(t, "baseline", doc.Info.AssessmentType)
		assert.Equal(t, "draft", doc.Info.Status)
		assert.Equal(t, "tester", doc.Info.CreatedBy)
		assert.Equal(t, []string{"completeness", "timeliness"}, doc.Info.DataQualityDimensions)
		assert.Equal(t, []string{"completeness", "timeliness"}, doc.Info.DataDimensionsQuality)
		require.NotNil(t, doc.Info.SMSConfig)
		assert.False(t, doc.Info.SMSConfig.Enabled)

		require.NotNil(t, doc.Info.Dhis2Config)
		assert.False(t, doc.Info.Dhis2Config.Info.Configured)

		require.Len(t, doc.Info.Dhis2Config.DatasetsSelected, 1)
		ds := doc.Info.Dhis2Config.DatasetsSelected[0]
		assert.Equal(t, "ds1", ds.Info.ID)
		require.Len(t, ds.DataElements, 1)
		assert.Equal(t, "de1", ds.DataElements[0].ID)
		assert.Equal(t, "TEXT", ds.DataElements[0].ValueType)
		assert.Equal(t, "SUM", ds.DataElements[0].AggregationType)
		assert.Equal(t, "AGGREGATE", ds.DataElements[0].DomainType)
		assert.Equal(t, "r-------", ds.DataElements[0].PublicAccess)
		require.Len(t, ds.OrganisationUnits, 1)
		assert.Equal(t, "ou1", ds.OrganisationUnits[0].ID)

		assert.Empty(t, doc.LocalDatasets)
		assert.NotNil(t, doc.LocalDatasets)
	})

	t.Run("Should never emit a JSON null for a documented list field", func(t *testing.T) {
		b := fixedBuilder()
		doc := b.Build(nil, nil, nil, nil, nil, nil, nil, "tester")

		raw, err := json.Marshal(doc)
		require.NoError(t, err)

		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.NotNil(t, out["localDatasetsCreated"])
		info := out["Info"].(map[string]interface{})
		assert.NotNil(t, info["dataQualityDimensions"])
		assert.NotNil(t, info["stakeholders"])
		assert.NotNil(t, info["smsConfig"])
		cfg := info["Dhis2config"].(map[string]interface{})
		assert.NotNil(t, cfg["datasetsSelected"])
		assert.NotNil(t, cfg["orgUnitMapping"])
	})

	t.Run("Should set metadataSource to dhis2 when a base URL is configured", func(t *testing.T) {
		b := fixedBuilder()
		doc := b.Build(
			map[string]interface{}{"name": "remote"},
			map[string]interface{}{"baseUrl": "https://play.dhis2.org", "username": "admin", "password": "district"},
			nil, nil, nil, nil, nil,
			"tester",
		)

		assert.Equal(t, "dhis2", doc.MetadataSource)
		assert.True(t, doc.Info.Dhis2Config.Info.Configured)
		assert.False(t, doc.Info.Dhis2Config.Info.Connected)
	})

	t.Run("Should generate an ID when none is supplied", func(t *testing.T) {
		doc := fixedBuilder().Build(map[string]interface{}{"name": "x"}, nil, nil, nil, nil, nil, nil, "tester")
		assert.NotEmpty(t, doc.ID)
	})

	t.Run("Should filter malformed dataset and element entries", func(t *testing.T) {
		b := fixedBuilder()
		doc := b.Build(
			map[string]interface{}{"name": "x"},
			nil,
			[]map[string]interface{}{{"name": "no id"}, {"id": "ds1", "name": "ok"}},
			[]map[string]interface{}{{"notAnID": true}, {"id": "de1"}},
			nil, nil, nil,
			"tester",
		)

		require.Len(t, doc.Info.Dhis2Config.DatasetsSelected, 1)
		assert.Equal(t, "ds1", doc.Info.Dhis2Config.DatasetsSelected[0].Info.ID)
		require.Len(t, doc.Info.Dhis2Config.DatasetsSelected[0].DataElements, 1)
	})

	t.Run("Should keep only mapped org unit mappings", func(t *testing.T) {
		b := fixedBuilder()
		doc := b.Build(
			map[string]interface{}{"name": "x"},
			nil, nil, nil, nil,
			[]map[string]interface{}{
				{
					"status":   "mapped",
					"external": map[string]interface{}{"id": "ext1", "name": "Clinic"},
					"dhis2":    map[string]interface{}{"id": "OuAbc123456", "name": "Clinic A"},
				},
				{
					"status":   "pending",
					"external": map[string]interface{}{"id": "ext2"},
					"dhis2":    map[string]interface{}{"id": "OuDef123456"},
				},
			},
			nil,
			"tester",
		)

		require.Len(t, doc.Info.Dhis2Config.OrgUnitMapping, 1)
		m := doc.Info.Dhis2Config.OrgUnitMapping[0]
		assert.Equal(t, "ext1", m.External.ID)
		assert.Equal(t, "OuAbc123456", m.Dhis2.ID)
		assert.Equal(t, "mapped", m.Status)
	})

	t.Run("Should prefer a dataset's own sub-lists over the global selection", func(t *testing.T) {
		b := fixedBuilder()
		doc := b.Build(
			map[string]interface{}{"name": "x"},
			nil,
			[]map[string]interface{}{{
				"id":           "ds1",
				"dataElements": []interface{}{map[string]interface{}{"id": "own1"}},
			}},
			[]map[string]interface{}{{"id": "global1"}},
			nil, nil, nil,
			"tester",
		)

		ds := doc.Info.Dhis2Config.DatasetsSelected[0]
		require.Len(t, ds.DataElements, 1)
		assert.Equal(t, "own1", ds.DataElements[0].ID)
	})

	t.Run("Should default local dataset records", func(t *testing.T) {
		b := fixedBuilder()
		doc := b.Build(
			map[string]interface{}{"name": "x"},
			nil, nil, nil, nil, nil,
			[]map[string]interface{}{{
				"info": map[string]interface{}{"id": "ld1", "name": "Register tool", "datasetType": "register"},
			}},
			"tester",
		)

		require.Len(t, doc.LocalDatasets, 1)
		ld := doc.LocalDatasets[0]
		assert.Equal(t, "Register tool", ld.Info.ShortName)
		assert.Equal(t, "Monthly", ld.Info.PeriodType)
		assert.Equal(t, "draft", ld.Info.Status)
		assert.Nil(t, ld.Info.Dhis2ID)
		assert.Equal(t, "r-------", ld.SharingSettings.PublicAccess)
		require.NotNil(t, ld.SMSConfig)
		assert.Equal(t, ",", ld.SMSConfig.Separator)
	})
}

func TestBuildSMSConfig(t *testing.T) {
	t.Run("Should populate the legacy and extended message keys", func(t *testing.T) {
		cfg := buildSMSConfig(nil)
		assert.NotEmpty(t, cfg.EmptyCodesMessage)
		assert.NotEmpty(t, cfg.CommandOnlyMessage)
		assert.Equal(t, ",", cfg.Separator)
	})

	t.Run("Should keep user-provided values", func(t *testing.T) {
		cfg := buildSMSConfig(map[string]interface{}{
			"enabled":     true,
			"commandName": "dqa_report",
			"separator":   ";",
		})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "dqa_report", cfg.CommandName)
		assert.Equal(t, ";", cfg.Separator)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("Should be a no-op on an already canonical document", func(t *testing.T) {
		doc := fixedBuilder().Build(map[string]interface{}{"id": "a1", "name": "Q1"}, nil, nil, nil, nil, nil, nil, "tester")

		before, err := json.Marshal(doc)
		require.NoError(t, err)
		after, err := json.Marshal(Normalize(doc))
		require.NoError(t, err)
		assert.JSONEq(t, string(before), string(after))
	})

	t.Run("Should move the legacy config under Info", func(t *testing.T) {
		doc := &models.Assessment{
			ID: "old1",
			LegacyDhis2Config: &models.Dhis2Config{
				Info: models.ConnectionInfo{BaseURL: "https://play.dhis2.org"},
			},
		}

		Normalize(doc)
		require.NotNil(t, doc.Info.Dhis2Config)
		assert.Equal(t, "https://play.dhis2.org", doc.Info.Dhis2Config.Info.BaseURL)
		assert.Nil(t, doc.LegacyDhis2Config)
		assert.Equal(t, "dhis2", doc.MetadataSource)
	})

	t.Run("Should prefer the nested config when both locations are set", func(t *testing.T) {
		doc := &models.Assessment{
			ID: "both",
			Info: models.Info{
				Dhis2Config: &models.Dhis2Config{Info: models.ConnectionInfo{BaseURL: "https://nested"}},
			},
			LegacyDhis2Config: &models.Dhis2Config{Info: models.ConnectionInfo{BaseURL: "https://legacy"}},
		}

		Normalize(doc)
		assert.Equal(t, "https://nested", doc.Info.Dhis2Config.Info.BaseURL)
		assert.Nil(t, doc.LegacyDhis2Config)
	})

	t.Run("Should fall back dataDimensionsQuality to dataQualityDimensions", func(t *testing.T) {
		doc := &models.Assessment{
			ID:   "dims",
			Info: models.Info{DataQualityDimensions: []string{"accuracy"}},
		}

		Normalize(doc)
		assert.Equal(t, []string{"accuracy"}, doc.Info.DataDimensionsQuality)
	})

	t.Run("Should default element value types and dataset SMS configs", func(t *testing.T) {
		doc := &models.Assessment{
			ID: "els",
			LocalDatasets: []models.LocalDataset{{
				Info:         models.LocalDatasetInfo{ID: "ld1"},
				DataElements: []models.DataElement{{ID: "de1", Name: "Doses"}},
			}},
		}

		Normalize(doc)
		el := doc.LocalDatasets[0].DataElements[0]
		assert.Equal(t, "TEXT", el.ValueType)
		assert.Equal(t, "Doses", el.ShortName)
		require.NotNil(t, doc.LocalDatasets[0].SMSConfig)
	})
}
