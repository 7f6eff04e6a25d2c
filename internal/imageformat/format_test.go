package imageformat

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "png", want: PNG},
		{name: "PNG", want: PNG},
		{name: " jpg ", want: JPG},
		{name: "jpeg", want: JPG},
		{name: "webp", want: WebP},
		{name: "gif", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestParseOutput(t *testing.T) {
	if _, err := ParseOutput("webp"); err == nil {
		t.Error("ParseOutput(webp) should fail: webp is input-only")
	}
	if _, err := ParseOutput("gif"); err == nil {
		t.Error("ParseOutput(gif) should fail")
	}
	f, err := ParseOutput("Jpg")
	if err != nil {
		t.Fatalf("ParseOutput(Jpg) failed: %v", err)
	}
	if f != JPG {
		t.Errorf("ParseOutput(Jpg) = %v, want jpg", f)
	}
}

func TestFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/watched/img.webp", WebP},
		{"/watched/IMG.WEBP", WebP},
		{"/watched/a.webp.webp", WebP},
		{"/watched/img.png", Unknown},
		{"/watched/webp", Unknown},
		{"/watched/img.webp.tmp", Unknown},
	}

	for _, tt := range tests {
		if got := FromPath(tt.path); got != tt.want {
			t.Errorf("FromPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSets(t *testing.T) {
	if !WebP.IsInput() || WebP.IsOutput() {
		t.Error("webp must be input-only")
	}
	for _, f := range []Format{PNG, JPG} {
		if f.IsInput() || !f.IsOutput() {
			t.Errorf("%v must be output-only", f)
		}
	}

	out := Outputs()
	out[0] = Unknown
	if Outputs()[0] != PNG {
		t.Error("Outputs() must return a copy")
	}

	if got := Names(Outputs()); got != "png, jpg" {
		t.Errorf("Names(Outputs()) = %q", got)
	}
	if got := JPG.Extension(); got != ".jpg" {
		t.Errorf("JPG.Extension() = %q", got)
	}
	if got := WebP.Glob(); got != "*.webp" {
		t.Errorf("WebP.Glob() = %q", got)
	}
}
