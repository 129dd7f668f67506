package translate

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func stageKey(t *testing.T, stage bson.D) string {
	t.Helper()
	if len(stage) == 0 {
		t.Fatalf("empty stage")
	}
	return stage[0].Key
}

func TestRenderPipeline_Count(t *testing.T) {
	t.Parallel()

	in, err := Parse("count orders")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	if len(got) != 1 || stageKey(t, got[0]) != "$count" {
		t.Fatalf("pipeline=%v, want [$count]", got)
	}
	if got[0][0].Value != "count" {
		t.Fatalf("$count field=%v, want count", got[0][0].Value)
	}
}

func TestRenderPipeline_RecentWindowCutoff(t *testing.T) {
	// Not parallel: swaps the package clock.
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	old := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = old }()

	in, err := Parse("show orders from the last 30 days")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders", DateField: "order_date"})
	if len(got) != 1 || stageKey(t, got[0]) != "$match" {
		t.Fatalf("pipeline=%v, want [$match]", got)
	}

	match := got[0][0].Value.(bson.D)
	if match[0].Key != "order_date" {
		t.Fatalf("match field=%q, want order_date", match[0].Key)
	}
	cond := match[0].Value.(bson.D)
	cutoff := cond[0].Value.(time.Time)
	if want := fixed.AddDate(0, 0, -30); !cutoff.Equal(want) {
		t.Fatalf("cutoff=%v, want %v", cutoff, want)
	}
}

func TestRenderPipeline_RecentWindowUnits(t *testing.T) {
	// Not parallel: swaps the package clock.
	fixed := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	old := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = old }()

	tests := []struct {
		text string
		want time.Time
	}{
		{text: "last 2 months", want: fixed.AddDate(0, -2, 0)},
		{text: "last 1 year", want: fixed.AddDate(-1, 0, 0)},
	}
	for _, tc := range tests {
		in, err := Parse(tc.text)
		if err != nil {
			t.Fatalf("Parse(%q) err=%v", tc.text, err)
		}
		got := RenderPipeline(in, Target{Name: "t"})
		cond := got[0][0].Value.(bson.D)[0].Value.(bson.D)
		if cutoff := cond[0].Value.(time.Time); !cutoff.Equal(tc.want) {
			t.Fatalf("Parse(%q) cutoff=%v, want %v", tc.text, cutoff, tc.want)
		}
	}
}

func TestRenderPipeline_GroupBy(t *testing.T) {
	t.Parallel()

	in, err := Parse("sum amount group by category")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	if len(got) != 1 || stageKey(t, got[0]) != "$group" {
		t.Fatalf("pipeline=%v, want [$group]", got)
	}

	group := got[0][0].Value.(bson.D)
	if group[0].Key != "_id" || group[0].Value != "$category" {
		t.Fatalf("group _id=%v", group[0])
	}
	result := group[1].Value.(bson.D)
	if result[0].Key != "$sum" || result[0].Value != "$amount" {
		t.Fatalf("group result=%v, want {$sum: $amount}", result)
	}
}

func TestRenderPipeline_GroupByCountUsesSumOne(t *testing.T) {
	t.Parallel()

	in, err := Parse("group by status")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	result := got[0][0].Value.(bson.D)[1].Value.(bson.D)
	if result[0].Key != "$sum" || result[0].Value != 1 {
		t.Fatalf("count aggregation=%v, want {$sum: 1}", result)
	}
}

func TestRenderPipeline_JoinLookupUnwind(t *testing.T) {
	t.Parallel()

	in, err := Parse("left join customers on customer_id")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	if len(got) != 2 || stageKey(t, got[0]) != "$lookup" || stageKey(t, got[1]) != "$unwind" {
		t.Fatalf("pipeline=%v, want [$lookup $unwind]", got)
	}

	unwind := got[1][0].Value.(bson.D)
	if unwind[1].Key != "preserveNullAndEmptyArrays" || unwind[1].Value != true {
		t.Fatalf("left join must preserve empty matches: %v", unwind)
	}

	in, err = Parse("join customers on customer_id")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got = RenderPipeline(in, Target{Name: "orders"})
	unwind = got[1][0].Value.(bson.D)
	if unwind[1].Value != false {
		t.Fatalf("inner join must drop empty matches: %v", unwind)
	}
}

func TestRenderPipeline_Rank(t *testing.T) {
	t.Parallel()

	in, err := Parse("dense rank by amount partition by region")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	if len(got) != 1 || stageKey(t, got[0]) != "$setWindowFields" {
		t.Fatalf("pipeline=%v, want [$setWindowFields]", got)
	}

	wf := got[0][0].Value.(bson.D)
	if wf[0].Key != "partitionBy" || wf[0].Value != "$region" {
		t.Fatalf("partitionBy=%v", wf[0])
	}
	output := wf[2].Value.(bson.D)
	rank := output[0].Value.(bson.D)
	if rank[0].Key != "$denseRank" {
		t.Fatalf("rank operator=%q, want $denseRank", rank[0].Key)
	}
}

// TestRenderPipeline_MovingAverageWindow pins the rolling-window bounds: a
// window of 3 covers the current document and the two before it, so values
// 10,20,30,40 average to 10,15,20,30.
func TestRenderPipeline_MovingAverageWindow(t *testing.T) {
	t.Parallel()

	in, err := Parse("moving average of amount window 3")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	wf := got[0][0].Value.(bson.D)

	output := wf[1].Value.(bson.D)
	avg := output[0].Value.(bson.D)
	if avg[0].Key != "$avg" || avg[0].Value != "$amount" {
		t.Fatalf("avg=%v", avg)
	}
	window := avg[1].Value.(bson.D)
	docs := window[0].Value.(bson.A)
	if docs[0] != -2 || docs[1] != 0 {
		t.Fatalf("window documents=%v, want [-2 0]", docs)
	}
}

func TestRenderPipeline_FallbackSamples(t *testing.T) {
	t.Parallel()

	in, err := Parse("whatever")
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	got := RenderPipeline(in, Target{Name: "orders"})
	if len(got) != 1 || stageKey(t, got[0]) != "$limit" {
		t.Fatalf("pipeline=%v, want [$limit]", got)
	}
	if got[0][0].Value != defaultSampleLimit {
		t.Fatalf("$limit=%v, want %d", got[0][0].Value, defaultSampleLimit)
	}
}
