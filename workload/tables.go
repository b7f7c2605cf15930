package workload

import "strconv"

// tableSpec describes one of the three fixed-schema node tables the
// driver exercises, grounded on the original benchmark's People/
// Customer/Organization schemas.
type tableSpec struct {
	name    string
	columns []string
	csvFile string
}

var tableSpecs = []tableSpec{
	{
		name:    "People",
		columns: []string{"id", "firstName", "lastName", "sex", "email", "phone", "jobTitle"},
		csvFile: "people-100000.csv",
	},
	{
		name:    "Customer",
		columns: []string{"id", "firstName", "lastName", "company", "city", "country", "primaryPhone", "secondaryPhone", "email", "website"},
		csvFile: "customers-100000.csv",
	},
	{
		name:    "Organization",
		columns: []string{"id", "name", "website", "country", "description", "foundYear", "industry", "numEmployee"},
		csvFile: "organizations-100000.csv",
	},
}

func tableIndex(name string) int {
	for i, t := range tableSpecs {
		if t.name == name {
			return i
		}
	}
	return -1
}

func createTableQuery(spec tableSpec) string {
	query := "CREATE NODE TABLE " + spec.name + " ("
	for i, c := range spec.columns {
		if i > 0 {
			query += ", "
		}
		query += c + " STRING"
	}
	query += ");"
	return query
}

func copyTableQuery(spec tableSpec, csvDir string) string {
	return "COPY " + spec.name + " FROM '" + csvDir + "/" + spec.csvFile + "';"
}

func dropTableQuery(name string) string {
	return "DROP TABLE " + name + ";"
}

func alterDropColumnQuery(tableName, columnName string) string {
	return "ALTER TABLE " + tableName + " DROP COLUMN " + columnName + ";"
}

func deleteRangeQuery(tableName string, beginID, endID int) string {
	return "MATCH (n:" + tableName + ") WHERE n.id > " +
		strconv.Itoa(beginID) + " AND n.id < " + strconv.Itoa(endID) + ") DELETE n RETURN n.*;"
}
