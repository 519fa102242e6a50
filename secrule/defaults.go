package secrule

// DefaultDirectives are the stock directives a new WAF rule starts with:
// select the XML or JSON body processor based on Content-Type, then deny
// requests whose body failed to parse.
var DefaultDirectives = []string{
	`SecRule REQUEST_HEADERS:Content-Type "^(?:application(?:/soap\+|/)|text/)xml" "id:'200000',phase:1,t:none,t:lowercase,pass,nolog,ctl:requestBodyProcessor=XML"`,
	`SecRule REQUEST_HEADERS:Content-Type "^application/json" "id:'200001',phase:1,t:none,t:lowercase,pass,nolog,ctl:requestBodyProcessor=JSON"`,
	`SecRule &REQUEST_BODY "@eq 0" "id:'200002',phase:2,t:none,deny,status:400,msg:'Failed to parse request body.'"`,
}
