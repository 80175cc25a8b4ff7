package domain

// ParameterInfo — информация о параметре вместе со всей иерархией
// scenario → area → item → channel.
type ParameterInfo struct {
	ParameterID   int64  `db:"parameter_id" json:"parameter_id"`
	Name          string `db:"name" json:"name"`
	ParameterCode string `db:"parameter_code" json:"parameter_code"`
	Unit          string `db:"unit" json:"unit"`
	DataType      string `db:"data_type" json:"data_type"`
	ChannelName   string `db:"channel_name" json:"channel_name"`
	ChannelCode   string `db:"channel_code" json:"channel_code"`
	ItemName      string `db:"item_name" json:"item_name"`
	ItemCode      string `db:"item_code" json:"item_code"`
	AreaName      string `db:"area_name" json:"area_name"`
	AreaCode      string `db:"area_code" json:"area_code"`
	ScenarioName  string `db:"scenario_name" json:"scenario_name"`
	ScenarioCode  string `db:"scenario_code" json:"scenario_code"`
}

// ChannelInfo — информация о канале с количеством параметров.
type ChannelInfo struct {
	ChannelID      int64  `db:"channel_id" json:"channel_id"`
	Name           string `db:"channel_name" json:"name"`
	Code           string `db:"channel_code" json:"code"`
	Description    string `db:"description" json:"description"`
	ParameterCount int64  `db:"parameter_count" json:"parameter_count"`
	ItemName       string `db:"item_name" json:"item_name"`
	ItemCode       string `db:"item_code" json:"item_code"`
	AreaName       string `db:"area_name" json:"area_name"`
	AreaCode       string `db:"area_code" json:"area_code"`
	ScenarioName   string `db:"scenario_name" json:"scenario_name"`
	ScenarioCode   string `db:"scenario_code" json:"scenario_code"`
}

// ParameterRef — краткая ссылка на параметр внутри канала.
type ParameterRef struct {
	ParameterID int64  `db:"parameter_id" json:"parameter_id"`
	Name        string `db:"name" json:"name"`
	DataType    string `db:"data_type" json:"data_type"`
}

// ParameterRecordCount — имя параметра с единицей измерения и числом
// записей за период (для заголовков экспорта канала).
type ParameterRecordCount struct {
	Name        string `db:"name" json:"name"`
	Unit        string `db:"unit" json:"unit"`
	RecordCount int64  `db:"record_count" json:"record_count"`
}
