package store

// CorporateActionRecord is one stored row. The csv tags carry the header
// names used when exporting the table back to CSV.
type CorporateActionRecord struct {
	Symbol             string `csv:"Symbol"`
	CompanyName        string `csv:"Company Name"`
	SecurityType       string `csv:"Security Type"`
	ExDate             string `csv:"Ex Date"`
	Purpose            string `csv:"Purpose"`
	RecordDate         string `csv:"Record Date"`
	BCStartDate        string `csv:"BC Start Date"`
	BCEndDate          string `csv:"BC End Date"`
	NDStartDate        string `csv:"ND Start Date"`
	NDEndDate          string `csv:"ND End Date"`
	ActualPaymentDate  string `csv:"Actual Payment Date"`
	Remarks            string `csv:"Remarks"`
	DateTimeDownloaded string `csv:"Download Timestamp"`
}

// Columns is the fixed table schema in insertion order. The last column is
// generated at load time and never read from the source file.
var Columns = []string{
	"Symbol",
	"Company_Name",
	"Security_Type",
	"Ex_Date",
	"Purpose",
	"Record_Date",
	"BC_Start_Date",
	"BC_End_Date",
	"ND_Start_Date",
	"ND_End_Date",
	"Actual_Payment_Date",
	"Remarks",
	"DateTime_Downloaded",
}

func (r *CorporateActionRecord) scanTargets() []any {
	return []any{
		&r.Symbol,
		&r.CompanyName,
		&r.SecurityType,
		&r.ExDate,
		&r.Purpose,
		&r.RecordDate,
		&r.BCStartDate,
		&r.BCEndDate,
		&r.NDStartDate,
		&r.NDEndDate,
		&r.ActualPaymentDate,
		&r.Remarks,
		&r.DateTimeDownloaded,
	}
}
