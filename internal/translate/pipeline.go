package translate

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// defaultSampleLimit bounds the select-all fallback on the document path.
const defaultSampleLimit = 10

// timeNow is a test seam for recent-window cutoffs.
var timeNow = time.Now

// aggOperators maps grammar aggregation tokens onto pipeline operators.
var aggOperators = map[string]string{
	"sum": "$sum",
	"avg": "$avg",
	"min": "$min",
	"max": "$max",
}

// RenderPipeline renders the intent as aggregation-pipeline stages. The
// pipeline is always built from the structured intent, never from raw caller
// text.
func RenderPipeline(in Intent, t Target) []bson.D {
	pk := t.PrimaryKey
	if pk == "" {
		pk = "_id"
	}

	switch in.Operation {
	case OpCount:
		return []bson.D{{{Key: "$count", Value: "count"}}}

	case OpFilterRecent:
		dateField := t.DateField
		if dateField == "" {
			dateField = "date"
		}
		cutoff := recentCutoff(in.WindowN, in.WindowUnit)
		return []bson.D{{{Key: "$match", Value: bson.D{
			{Key: dateField, Value: bson.D{{Key: "$gte", Value: cutoff}}},
		}}}}

	case OpGroupByAggregate:
		var result bson.D
		if op, ok := aggOperators[in.AggFunc]; ok && in.AggField != "" {
			result = bson.D{{Key: op, Value: "$" + in.AggField}}
		} else {
			result = bson.D{{Key: "$sum", Value: 1}}
		}
		return []bson.D{{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + in.GroupField},
			{Key: "result", Value: result},
		}}}}

	case OpJoin:
		return []bson.D{
			{{Key: "$lookup", Value: bson.D{
				{Key: "from", Value: in.JoinTarget},
				{Key: "localField", Value: in.JoinField},
				{Key: "foreignField", Value: in.JoinField},
				{Key: "as", Value: in.JoinTarget},
			}}},
			{{Key: "$unwind", Value: bson.D{
				{Key: "path", Value: "$" + in.JoinTarget},
				{Key: "preserveNullAndEmptyArrays", Value: in.JoinKind != JoinInner},
			}}},
		}

	case OpRank:
		sortField := in.SortField
		if sortField == "" {
			sortField = pk
		}
		op := "$rank"
		if in.DenseRank {
			op = "$denseRank"
		}
		wf := bson.D{
			{Key: "sortBy", Value: bson.D{{Key: sortField, Value: 1}}},
			{Key: "output", Value: bson.D{
				{Key: "rank", Value: bson.D{{Key: op, Value: bson.D{}}}},
			}},
		}
		if in.PartitionField != "" {
			wf = append(bson.D{{Key: "partitionBy", Value: "$" + in.PartitionField}}, wf...)
		}
		return []bson.D{{{Key: "$setWindowFields", Value: wf}}}

	case OpMovingAverage:
		preceding := in.WindowSize - 1
		if preceding < 0 {
			preceding = 0
		}
		return []bson.D{{{Key: "$setWindowFields", Value: bson.D{
			{Key: "sortBy", Value: bson.D{{Key: pk, Value: 1}}},
			{Key: "output", Value: bson.D{
				{Key: "movingAvg", Value: bson.D{
					{Key: "$avg", Value: "$" + in.AvgField},
					{Key: "window", Value: bson.D{
						{Key: "documents", Value: bson.A{-preceding, 0}},
					}},
				}},
			}},
		}}}}

	default:
		return []bson.D{{{Key: "$limit", Value: defaultSampleLimit}}}
	}
}

// recentCutoff computes now minus N units in UTC.
func recentCutoff(n int, unit string) time.Time {
	now := timeNow().UTC()
	switch unit {
	case "month":
		return now.AddDate(0, -n, 0)
	case "year":
		return now.AddDate(-n, 0, 0)
	default:
		return now.AddDate(0, 0, -n)
	}
}
