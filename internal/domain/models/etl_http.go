package models

// Requests for ETL and feature HTTP endpoints.

type RunKeyRequest struct {
	Source string `query:"source" json:"source" validate:"required"`
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Start  string `query:"start" json:"start"`
	End    string `query:"end" json:"end"`
}

type TriggerRunRequest struct {
	Source string `json:"source" validate:"required"`
	Symbol string `json:"symbol" validate:"required"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Force  bool   `json:"force"`
}

type RunHistoryRequest struct {
	Source string `query:"source" json:"source"`
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type AlignedFeaturesRequest struct {
	Sources   string `query:"sources" json:"sources" validate:"required"`
	Freq      string `query:"freq" json:"freq" default:"1D" validate:"required"`
	Join      string `query:"join" json:"join" default:"outer" validate:"oneof=inner outer"`
	Agg       string `query:"agg" json:"agg" default:"mean" validate:"oneof=sum mean first last min max count"`
	Fill      string `query:"fill" json:"fill" default:"ffill" validate:"oneof=none ffill bfill nearest"`
	FillLimit int    `query:"limit" json:"limit" validate:"gte=0,lte=10000"`
	Start     string `query:"start" json:"start"`
	End       string `query:"end" json:"end"`
}
