package services

import (
	"github.com/dmitrijs2005/poleshift/internal/client/models"
)

// The column lists below are the exact projections of each result table.
// Rows from the worker may carry other keys; only these are stored.

var ctdColumns = []string{
	"timestamp", "depth", "pressure", "sea_pressure", "temperature", "conductivity",
	"salinity", "speed_of_sound", "specific_conductivity", "chlorophyll_a",
}

var (
	rawCTDColumns       = append([]string{"id", "raw_data_id", "sample_id", "user_id", "org_id"}, ctdColumns...)
	processedCTDColumns = append([]string{"id", "processed_data_id", "sample_id", "user_id", "org_id"}, ctdColumns...)

	rawSequenceColumns = []string{
		"id", "raw_data_id", "sample_id", "user_id", "org_id",
		"feature_id", "sequence", "quality", "quality_median", "run_id", "read", "ch",
		"start_time", "sample_id_fastq", "barcode", "barcode_alias", "parent_read_id",
		"basecall_model_version_id", "flow_cell_id", "protocol_group_id",
	}
	krakenReportColumns = []string{
		"id", "processed_data_id", "sample_id", "user_id", "org_id",
		"percentage", "reads", "tax_reads", "kmers", "duplication", "coverage",
		"tax_id", "rank", "tax_name", "parent_id", "children_ids", "e_score",
	}
	krakenStdoutColumns = []string{
		"id", "processed_data_id", "sample_id", "user_id", "org_id",
		"classified", "feature_id", "tax_id", "read_length", "hit_data",
	}
	ammoniaColumns = []string{
		"id", "processed_data_id", "sample_id", "user_id", "org_id", "ammonia", "ammonium",
	}
)

// part selects one slice of a worker report.
type part int

const (
	partRaw part = iota
	partProcessed
	partReportContent
)

type tablePlan struct {
	table   string
	columns []string
	part    part
	// parentKey is the column linking rows to the raw or processed id.
	parentKey string
}

var plans = map[models.DataType][]tablePlan{
	models.DataTypeCTD: {
		{table: "raw_ctd_data", columns: rawCTDColumns, part: partRaw, parentKey: "raw_data_id"},
		{table: "processed_ctd_data", columns: processedCTDColumns, part: partProcessed, parentKey: "processed_data_id"},
	},
	models.DataTypeSequence: {
		{table: "raw_sequences", columns: rawSequenceColumns, part: partRaw, parentKey: "raw_data_id"},
		{table: "processed_kraken_uniq_report", columns: krakenReportColumns, part: partProcessed, parentKey: "processed_data_id"},
		{table: "processed_kraken_uniq_stdout", columns: krakenStdoutColumns, part: partReportContent, parentKey: "processed_data_id"},
	},
	models.DataTypeNutrientAmmonia: {
		{table: "processed_nutrient_ammonia_data", columns: ammoniaColumns, part: partProcessed, parentKey: "processed_data_id"},
	},
}

func (p tablePlan) rows(r models.Report) []models.Row {
	switch p.part {
	case partRaw:
		return r.RawData
	case partReportContent:
		return r.ReportContent
	}
	return r.ProcessedData
}
