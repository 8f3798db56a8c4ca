package application

// Gateway Queries

// FieldOverviewQuery requests the composed overview for one field
type FieldOverviewQuery struct {
	FieldID   string
	CallerKey string
}

// FarmDashboardQuery requests the composed dashboard for one farm
type FarmDashboardQuery struct {
	FarmID    string
	CallerKey string
}

// FieldWeatherQuery requests weather for one field. An empty Range means
// current conditions.
type FieldWeatherQuery struct {
	FieldID   string
	Range     string
	CallerKey string
}
