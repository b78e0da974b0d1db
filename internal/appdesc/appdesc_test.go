package appdesc

import "testing"

const sampleDescription = `{
	"name": "spark-job",
	"version": 1,
	"will_end": true,
	"priority": 5,
	"processes": [
		{
			"name": "master",
			"docker_image": "zoeapps/spark-master",
			"essential": true,
			"required_resources": {"memory": 1073741824, "cores": 1},
			"ports": [{"name": "web", "protocol": "tcp", "port_number": 8080, "is_main_endpoint": true}],
			"environment": [["SPARK_MASTER", "{name_prefix}-master"]],
			"extra_vendor_field": "keep me"
		}
	]
}`

func TestParsePreservesUnknownFields(t *testing.T) {
	d, err := Parse([]byte(sampleDescription))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if d.Name != "spark-job" || d.Version != 1 || d.Priority != 5 {
		t.Fatalf("unexpected top-level fields: %+v", d)
	}
	if d.ServicesCount() != 1 {
		t.Fatalf("expected 1 process, got %d", d.ServicesCount())
	}

	p := d.Processes[0]
	if p.Unknown == nil || string(p.Unknown["extra_vendor_field"]) != `"keep me"` {
		t.Fatalf("expected unknown field preserved, got %+v", p.Unknown)
	}
}

func TestSubstitutionsApply(t *testing.T) {
	s := Substitutions{NamePrefix: "zoe-42", ExecutionID: "42", UserID: "7", UserName: "alice", ApplicationBinary: "spark-submit"}
	got := s.Apply("{name_prefix}-{execution_id}-{user_name}-{user_id}-{application_binary}")
	want := "zoe-42-42-alice-7-spark-submit"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
